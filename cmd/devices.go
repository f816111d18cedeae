package cmd

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/rvt-studio/internal/catalog"
	"github.com/ziadkadry99/rvt-studio/internal/devices"
)

var devicesCmd = &cobra.Command{
	Use:     "devices",
	Aliases: []string{"device"},
	Short:   "Manage the machines your plugin license is installed on",
}

var devicesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered devices",
	RunE:  runDevicesList,
}

var devicesAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Register a device (default: this machine)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDevicesAdd,
}

var devicesRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Free a device slot",
	Args:  cobra.ExactArgs(1),
	RunE:  runDevicesRemove,
}

func init() {
	devicesAddCmd.Flags().String("revit", "", "Revit version installed on the device")
	devicesCmd.AddCommand(devicesListCmd, devicesAddCmd, devicesRemoveCmd)
	rootCmd.AddCommand(devicesCmd)
}

func runDevicesList(cmd *cobra.Command, args []string) error {
	s, err := requireSession()
	if err != nil {
		return err
	}
	database, err := openDatabase(s.cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	store := devices.NewStore(database, s.cfg.Plugin.MaxDevices)
	ctx := cmd.Context()
	list, err := store.List(ctx, s.userID())
	if err != nil {
		return err
	}
	usage, err := store.Usage(ctx, s.userID())
	if err != nil {
		return err
	}

	if len(list) > 0 {
		fmt.Printf("%-36s %-24s %-10s %-8s %s\n", "ID", "NAME", "PLATFORM", "REVIT", "LAST SEEN")
		for _, d := range list {
			fmt.Printf("%-36s %-24s %-10s %-8s %s\n",
				d.ID, truncate(d.Name, 24), d.Platform, d.RevitVersion, d.LastSeen.Local().Format("Jan 2, 2006 15:04"))
		}
		fmt.Println()
	}
	fmt.Printf("%s devices in use.\n", usage)
	return nil
}

func runDevicesAdd(cmd *cobra.Command, args []string) error {
	s, err := requireSession()
	if err != nil {
		return err
	}
	database, err := openDatabase(s.cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	name := ""
	if len(args) > 0 {
		name = args[0]
	} else if name, err = os.Hostname(); err != nil {
		return fmt.Errorf("getting hostname: %w", err)
	}
	revit, _ := cmd.Flags().GetString("revit")

	ctx := cmd.Context()
	store := devices.NewStore(database, s.cfg.Plugin.MaxDevices)
	d, created, err := store.Register(ctx, s.userID(), devices.NewDevice{
		Name:         name,
		Platform:     runtime.GOOS,
		RevitVersion: revit,
	})
	if errors.Is(err, devices.ErrLimitReached) {
		return fmt.Errorf("%w: remove a device with `rvtstudio devices remove <id>`", err)
	}
	if err != nil {
		return err
	}
	if !created {
		fmt.Printf("%s is already registered.\n", d.Name)
		return nil
	}

	s.newRecorder(database).RecordChange(ctx, catalog.Change{
		Action:   "device_added",
		RecordID: d.ID,
		Summary:  fmt.Sprintf("Registered device %s", d.Name),
	})
	fmt.Printf("Registered %s (%s).\n", d.Name, d.ID)
	return nil
}

func runDevicesRemove(cmd *cobra.Command, args []string) error {
	s, err := requireSession()
	if err != nil {
		return err
	}
	database, err := openDatabase(s.cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	ctx := cmd.Context()
	store := devices.NewStore(database, s.cfg.Plugin.MaxDevices)
	d, err := store.Get(ctx, s.userID(), args[0])
	if err != nil {
		return err
	}
	if err := store.Remove(ctx, s.userID(), d.ID); err != nil {
		return err
	}
	s.newRecorder(database).RecordChange(ctx, catalog.Change{
		Action:   "device_removed",
		RecordID: d.ID,
		Summary:  fmt.Sprintf("Removed device %s", d.Name),
	})
	fmt.Printf("Removed %s.\n", d.Name)
	return nil
}
