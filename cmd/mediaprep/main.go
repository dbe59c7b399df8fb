package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/open-imaging/mediaprep/internal/blockdev"
	"github.com/open-imaging/mediaprep/internal/config"
	"github.com/open-imaging/mediaprep/internal/disk"
	"github.com/open-imaging/mediaprep/internal/log"
	"github.com/open-imaging/mediaprep/internal/mount"
	"github.com/open-imaging/mediaprep/internal/mounttab"
	"github.com/open-imaging/mediaprep/internal/sysexec"
	"github.com/open-imaging/mediaprep/internal/udisks"
	"github.com/open-imaging/mediaprep/internal/validation"
	"github.com/open-imaging/mediaprep/internal/version"
)

// formatWaitTimeout is how long a freshly written partition gets to
// appear before and after formatting.
const formatWaitTimeout = 5 * time.Second

func main() {
	cmd := &cli.Command{
		Name:  "mediaprep",
		Usage: "Prepare removable media: partition, format, mount, and unmount",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Configuration file path",
				Value:   config.DefaultConfigPath,
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable debug logging",
			},
			&cli.StringFlag{
				Name:    "backend",
				Aliases: []string{"b"},
				Usage:   "udisks backend: cli or dbus",
			},
			&cli.StringFlag{
				Name:  "broker",
				Usage: "Privilege elevation broker binary",
			},
			&cli.BoolFlag{
				Name:    "version",
				Aliases: []string{"V"},
				Usage:   "Print version information",
			},
		},
		Commands: []*cli.Command{
			partitionCommand(),
			formatCommand(),
			mountCommand(),
			unmountCommand(),
			detectCommand(),
			compatibleCommand(),
			prepareCommand(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Bool("version") {
				fmt.Println(version.String())
				return nil
			}
			return cli.ShowAppHelp(cmd)
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// toolkit wires together the components every subcommand needs.
type toolkit struct {
	cfg       *config.Config
	runner    sysexec.Runner
	table     *mounttab.Table
	waiter    blockdev.Waiter
	probe     *blockdev.Probe
	udisks    udisks.Manager
	mounter   *mount.Mounter
	unmounter *mount.Unmounter
}

func newToolkit(cmd *cli.Command) (*toolkit, error) {
	log.Setup(cmd.Bool("verbose"))

	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	cfg.Merge(cmd.String("backend"), cmd.String("broker"))
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	runner := sysexec.NewExecRunner(sysexec.NewElevator(cfg.Broker))

	manager, err := udisks.NewManager(cfg.Backend, runner)
	if err != nil {
		return nil, fmt.Errorf("create udisks manager: %w", err)
	}

	table := mounttab.New(cfg.MountSources...)

	mounter := mount.NewMounter(runner, table, manager)
	mounter.Waiter = blockdev.Waiter{Interval: cfg.PollInterval()}
	mounter.TempDir = cfg.TempDir

	return &toolkit{
		cfg:       cfg,
		runner:    runner,
		table:     table,
		waiter:    blockdev.Waiter{Interval: cfg.PollInterval()},
		probe:     blockdev.NewProbe(runner),
		udisks:    manager,
		mounter:   mounter,
		unmounter: mount.NewUnmounter(runner, manager),
	}, nil
}

func partitionCommand() *cli.Command {
	return &cli.Command{
		Name:      "partition",
		Usage:     "Wipe the device and create a single whole-disk FAT32 partition",
		ArgsUsage: "<device>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			device := cmd.Args().First()
			if err := validation.ValidateDevicePath(device); err != nil {
				return err
			}

			tk, err := newToolkit(cmd)
			if err != nil {
				return err
			}

			return disk.NewPartitioner(tk.runner).CreateSinglePartition(device)
		},
	}
}

func formatCommand() *cli.Command {
	return &cli.Command{
		Name:      "format",
		Usage:     "Format a partition as FAT32",
		ArgsUsage: "<partition>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "label",
				Aliases:  []string{"l"},
				Usage:    "Volume label",
				Required: true,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			partition := cmd.Args().First()
			if err := validation.ValidateDevicePath(partition); err != nil {
				return err
			}

			tk, err := newToolkit(cmd)
			if err != nil {
				return err
			}

			return disk.NewFormatter(tk.runner).FormatFAT32(partition, cmd.String("label"))
		},
	}
}

func mountCommand() *cli.Command {
	return &cli.Command{
		Name:      "mount",
		Usage:     "Mount the device's filesystem and print the mount point",
		ArgsUsage: "<device>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			device := cmd.Args().First()
			if err := validation.ValidateDevicePath(device); err != nil {
				return err
			}

			tk, err := newToolkit(cmd)
			if err != nil {
				return err
			}

			mountPoint, err := tk.mounter.Mount(device)
			if err != nil {
				return err
			}

			fmt.Println(mountPoint)
			return nil
		},
	}
}

func unmountCommand() *cli.Command {
	return &cli.Command{
		Name:      "unmount",
		Usage:     "Flush writes and unmount the given mount point",
		ArgsUsage: "<mountpoint>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			mountPoint := cmd.Args().First()
			if err := validation.ValidateMountPoint(mountPoint); err != nil {
				return err
			}

			tk, err := newToolkit(cmd)
			if err != nil {
				return err
			}

			if !tk.unmounter.Unmount(mountPoint) {
				return fmt.Errorf("failed to unmount %s", mountPoint)
			}
			return nil
		},
	}
}

func detectCommand() *cli.Command {
	return &cli.Command{
		Name:      "detect",
		Usage:     "Print the filesystem type on the device or its first partition",
		ArgsUsage: "<device>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			device := cmd.Args().First()
			if err := validation.ValidateDevicePath(device); err != nil {
				return err
			}

			tk, err := newToolkit(cmd)
			if err != nil {
				return err
			}

			fsType, err := tk.probe.DetectFilesystem(device)
			if err != nil {
				return err
			}
			if fsType == "" {
				return fmt.Errorf("no filesystem detected on %s", device)
			}

			fmt.Println(fsType)
			return nil
		},
	}
}

func compatibleCommand() *cli.Command {
	return &cli.Command{
		Name:      "compatible",
		Usage:     "Check whether the device holds a FAT32, exFAT, or NTFS filesystem",
		ArgsUsage: "<device>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			device := cmd.Args().First()
			if err := validation.ValidateDevicePath(device); err != nil {
				return err
			}

			tk, err := newToolkit(cmd)
			if err != nil {
				return err
			}

			if !tk.probe.IsCompatible(device) {
				fmt.Println("false")
				return cli.Exit("", 1)
			}

			fmt.Println("true")
			return nil
		},
	}
}

func prepareCommand() *cli.Command {
	return &cli.Command{
		Name:      "prepare",
		Usage:     "Full preparation: unmount, repartition, and format the device",
		ArgsUsage: "<device>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "label",
				Aliases:  []string{"l"},
				Usage:    "Volume label",
				Required: true,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			device := cmd.Args().First()
			if err := validation.ValidateDevicePath(device); err != nil {
				return err
			}

			tk, err := newToolkit(cmd)
			if err != nil {
				return err
			}

			return prepareDevice(tk, device, cmd.String("label"))
		},
	}
}

// prepareDevice runs the full preparation flow: unmount anything that is
// still attached, rewrite the partition table, wait for the partition
// node, and format it.
func prepareDevice(tk *toolkit, device, label string) error {
	partition := blockdev.PartitionPath(device)

	// Pre-clean: unmount the partition and the whole device if either
	// is attached. mkfs would refuse a mounted target.
	for _, source := range []string{partition, device} {
		mountPoint, err := tk.table.MountPointOf(source)
		if err != nil {
			log.Warn("could not read mount state before preparing", "error", err)
			break
		}
		if mountPoint == "" {
			continue
		}
		if !tk.unmounter.Unmount(mountPoint) {
			log.Warn("could not unmount before preparing, continuing anyway",
				"source", source, "mountPoint", mountPoint)
		}
	}

	if err := disk.NewPartitioner(tk.runner).CreateSinglePartition(device); err != nil {
		return err
	}

	if !tk.waiter.WaitReady(partition, formatWaitTimeout) {
		return fmt.Errorf("partition %s did not appear after partitioning", partition)
	}

	if err := disk.NewFormatter(tk.runner).FormatFAT32(partition, label); err != nil {
		return err
	}

	if !tk.waiter.WaitReady(partition, formatWaitTimeout) {
		log.Warn("device may not be fully ready after format", "partition", partition)
	}

	log.Info("device prepared", "device", device, "partition", partition, "label", label)
	return nil
}
