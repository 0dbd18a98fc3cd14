package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/nfrund/walletchat/internal/domain"
)

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "Manage known rooms",
}

var roomsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known rooms",
	RunE: func(cmd *cobra.Command, args []string) error {
		rooms := application.Controller.View().Rooms
		if len(rooms) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No rooms yet. Create one with 'walletchat rooms create --name <name>'.")
			return nil
		}
		printRooms(cmd.OutOrStdout(), rooms)
		return nil
	},
}

var (
	createName string

	joinName    string
	joinAddress string
	joinKey     string
	joinInvite  string
)

var roomsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new room on the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		room, err := application.Controller.CreateRoom(cmd.Context(), createName)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Created room %q\n", room.Name)
		fmt.Fprintf(out, "  id:      %s\n", room.ID)
		fmt.Fprintf(out, "  invite:  %s\n", room.InviteURI())
		return nil
	},
}

var roomsJoinCmd = &cobra.Command{
	Use:   "join",
	Short: "Add an existing room from its address and key, or an invite",
	RunE: func(cmd *cobra.Command, args []string) error {
		address, key := joinAddress, joinKey
		if joinInvite != "" {
			var err error
			if address, key, err = domain.ParseInviteURI(joinInvite); err != nil {
				return err
			}
		}
		// Only registered here; the room connects when a chat enters it.
		room, err := application.Controller.RegisterRoom(cmd.Context(), joinName, address, key)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Joined room %q (%s)\n", room.Name, room.ID)
		return nil
	},
}

var roomsLeaveCmd = &cobra.Command{
	Use:   "leave <room>",
	Short: "Forget a room; its local history is kept",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		room, err := findRoom(application.Controller.View().Rooms, args[0])
		if err != nil {
			return err
		}
		if err := application.Controller.RemoveRoom(cmd.Context(), room.ID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Left room %q\n", room.Name)
		return nil
	},
}

var roomsInviteCmd = &cobra.Command{
	Use:   "invite <room>",
	Short: "Print the invite URI of a room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		room, err := findRoom(application.Controller.View().Rooms, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), room.InviteURI())
		return nil
	},
}

var roomsInfoCmd = &cobra.Command{
	Use:   "info <address>",
	Short: "Look up a room's credentials on the server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, err := application.API.LookupRoom(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "address:  %s\n", creds.Address)
		fmt.Fprintf(out, "key:      %s\n", creds.AccessKey)
		if creds.QRString != "" {
			fmt.Fprintf(out, "invite:   %s\n", creds.QRString)
		}
		return nil
	},
}

func init() {
	roomsCreateCmd.Flags().StringVar(&createName, "name", "", "room name (required)")
	_ = roomsCreateCmd.MarkFlagRequired("name")

	roomsJoinCmd.Flags().StringVar(&joinName, "name", "", "room name (default \""+domain.DefaultJoinedRoomName+"\")")
	roomsJoinCmd.Flags().StringVar(&joinAddress, "address", "", "room address")
	roomsJoinCmd.Flags().StringVar(&joinKey, "key", "", "room access key")
	roomsJoinCmd.Flags().StringVar(&joinInvite, "invite", "", "invite URI ("+domain.InviteScheme+"://<address>?key=<key>)")
	roomsJoinCmd.MarkFlagsMutuallyExclusive("invite", "address")
	roomsJoinCmd.MarkFlagsMutuallyExclusive("invite", "key")

	roomsCmd.AddCommand(roomsListCmd, roomsCreateCmd, roomsJoinCmd, roomsLeaveCmd, roomsInviteCmd, roomsInfoCmd)
	rootCmd.AddCommand(roomsCmd)
}

func printRooms(w io.Writer, rooms []domain.Room) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "", "Name", "Address", "ID"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	for i, room := range rooms {
		table.Append([]string{strconv.Itoa(i + 1), room.Icon, room.Name, room.Address, room.ID})
	}
	table.Render()
}

// findRoom resolves ref as a room id, a 1-based list position or a name.
func findRoom(rooms []domain.Room, ref string) (domain.Room, error) {
	ref = strings.TrimSpace(ref)
	for _, room := range rooms {
		if room.ID == ref {
			return room, nil
		}
	}
	if n, err := strconv.Atoi(ref); err == nil && n >= 1 && n <= len(rooms) {
		return rooms[n-1], nil
	}
	for _, room := range rooms {
		if strings.EqualFold(room.Name, ref) {
			return room, nil
		}
	}
	return domain.Room{}, fmt.Errorf("%w: %s", domain.ErrRoomNotFound, ref)
}
