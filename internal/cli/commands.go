// Package cli implements the interactive operator console: live room
// and client tables plus a kick command.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/colonyrelay-project/colonyrelay/internal/events"
	"github.com/colonyrelay-project/colonyrelay/internal/relay"
)

// CLI provides the interactive operator console.
type CLI struct {
	eventBus *events.EventBus
	relay    *relay.Server
}

// NewCLI creates a new CLI handler.
func NewCLI(eventBus *events.EventBus, relaySrv *relay.Server) *CLI {
	return &CLI{
		eventBus: eventBus,
		relay:    relaySrv,
	}
}

// Start begins the interactive CLI loop.
func (c *CLI) Start(ctx context.Context) {
	fmt.Println("\nColony Relay console ready. Type 'help' for available commands.")

	scanner := bufio.NewScanner(os.Stdin)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		fmt.Print("colonyrelay> ")
		if !scanner.Scan() {
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		if err := c.execute(ctx, cmd, args); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	}
}

// execute processes a single console command.
func (c *CLI) execute(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help", "h", "?":
		c.printHelp()
	case "status", "s":
		c.printStatus()
	case "rooms", "r":
		c.printRooms()
	case "clients", "c":
		c.printClients()
	case "kick":
		return c.cmdKick(ctx, args)
	case "quit", "exit", "q":
		fmt.Println("Shutting down Colony Relay...")
		c.eventBus.Emit(ctx, events.Event{
			Type:   events.EventShutdown,
			Source: "cli",
		})
	default:
		fmt.Printf("Unknown command: '%s'. Type 'help' for available commands.\n", cmd)
	}
	return nil
}

// printHelp displays available commands.
func (c *CLI) printHelp() {
	fmt.Println()
	fmt.Println("  status            Show relay status summary")
	fmt.Println("  rooms             Show all rooms and their slots")
	fmt.Println("  clients           Show connected clients")
	fmt.Println("  kick <client_id>  Disconnect a client")
	fmt.Println("  quit              Shutdown the relay")
	fmt.Println("  help              Show this help message")
	fmt.Println()
}

// printStatus displays a one-line relay summary.
func (c *CLI) printStatus() {
	rooms, clients := c.relay.Manager().Counts()
	uptime := time.Since(c.relay.StartedAt()).Round(time.Second)
	fmt.Printf("\n  Uptime: %s   Rooms: %d   Clients: %d\n\n", uptime, rooms, clients)
}

// printRooms displays rooms and occupied slots in formatted tables.
func (c *CLI) printRooms() {
	fmt.Println()

	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Room", "State", "Clients", "Map", "Slot", "Name", "Type", "Race", "Team", "Color", "Ready"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	for _, room := range c.relay.Manager().RoomsInfo() {
		state := "lobby"
		if room.InBattle {
			state = "battle"
		}

		for _, slot := range room.Slots {
			if slot.Type == "none" {
				continue
			}
			tw.Append([]string{
				fmt.Sprintf("%d", room.ID),
				state,
				fmt.Sprintf("%d", len(room.Clients)),
				room.Map,
				fmt.Sprintf("%d", slot.Index),
				slot.Name,
				slot.Type,
				slot.Race,
				fmt.Sprintf("%d", slot.Team),
				fmt.Sprintf("%d", slot.Color),
				fmt.Sprintf("%v", slot.Ready),
			})
		}
	}

	tw.Render()
	fmt.Println()
}

// printClients displays connected clients in a formatted table.
func (c *CLI) printClients() {
	fmt.Println()

	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Client", "Remote", "Room", "Slot"})
	tw.SetBorder(true)

	for _, client := range c.relay.Manager().ClientsInfo() {
		tw.Append([]string{
			fmt.Sprintf("%d", client.ID),
			client.RemoteAddr,
			fmt.Sprintf("%d", client.RoomID),
			fmt.Sprintf("%d", client.Slot),
		})
	}

	tw.Render()
	fmt.Println()
}

func (c *CLI) cmdKick(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: kick <client_id>")
	}

	id, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid client id: %s", args[0])
	}

	if !c.relay.Kick(ctx, uint32(id)) {
		return fmt.Errorf("client %d not found", id)
	}
	fmt.Printf("Client %d kicked\n", id)
	return nil
}
