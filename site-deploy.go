package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/klog/v2"

	"site-deploy/conf"
	"site-deploy/filter"
	"site-deploy/mirror"
	"site-deploy/sshconn"
	"site-deploy/syncerr"
)

func main() {
	klog.InitFlags(nil)
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	klog.Flush()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// deployOptions are the command line overrides of the deploy configuration.
type deployOptions struct {
	ConfigFile            string
	DryRun                bool
	Checksum              bool
	IdentityFile          string
	KnownHosts            string
	InsecureIgnoreHostKey bool
	Timeout               time.Duration
}

func (o *deployOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.ConfigFile, "config", o.ConfigFile,
		"Config file (YAML or JSON). Defaults to ./"+conf.LocalConfigFile+" or the user config directory")
	fs.BoolVar(&o.DryRun, "dry-run", o.DryRun,
		"Show what would change without touching the remote host")
	fs.BoolVar(&o.Checksum, "checksum", o.Checksum,
		"Compare file contents instead of size and modification time")
	fs.StringVar(&o.IdentityFile, "identity-file", o.IdentityFile,
		"Private key used to log in")
	fs.StringVar(&o.KnownHosts, "known-hosts", o.KnownHosts,
		"known_hosts file used to verify the remote host key")
	fs.BoolVar(&o.InsecureIgnoreHostKey, "insecure-ignore-host-key", o.InsecureIgnoreHostKey,
		"Skip remote host key verification")
	fs.DurationVar(&o.Timeout, "timeout", conf.DefaultTimeout,
		"Timeout for establishing the SSH connection")
}

// Conf resolves the configuration file and applies the flags set on fs.
func (o *deployOptions) Conf(fs *pflag.FlagSet) (conf.Conf, error) {
	cfg := conf.Default()
	file := o.ConfigFile
	if file == "" {
		file = conf.Find()
	}
	if file != "" {
		loaded, err := conf.LoadConf(file)
		if err != nil {
			return cfg, syncerr.Config("load", err)
		}
		klog.V(2).Infof("loaded config from %s", file)
		cfg = loaded
	}

	if fs.Changed("dry-run") {
		cfg.DryRun = o.DryRun
	}
	if fs.Changed("checksum") {
		cfg.Checksum = o.Checksum
	}
	if fs.Changed("identity-file") {
		cfg.Auth.PrivateKeyFile = o.IdentityFile
	}
	if fs.Changed("known-hosts") {
		cfg.Auth.KnownHostsFile = o.KnownHosts
	}
	if fs.Changed("insecure-ignore-host-key") {
		cfg.Auth.InsecureIgnoreHostKey = o.InsecureIgnoreHostKey
	}
	if fs.Changed("timeout") {
		cfg.Timeout = conf.Duration{Duration: o.Timeout}
	}
	return cfg, nil
}

func newRootCommand() *cobra.Command {
	opts := &deployOptions{}

	run := func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			klog.V(2).Infof("ignoring target %q, deploying to the configured target", args[0])
		}
		cfg, err := opts.Conf(cmd.Flags())
		if err != nil {
			return err
		}
		result, err := deploy(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		printSummary(cmd.OutOrStdout(), result)
		return nil
	}

	root := &cobra.Command{
		Use:   conf.AppName + " [target]",
		Short: "Mirror the generated site to its web server",
		Long: `Mirrors the local site directory onto the configured remote path over SSH/SFTP.
Remote files that no longer exist locally are deleted. Excluded paths are
never transferred or deleted.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	opts.AddFlags(root.PersistentFlags())

	root.AddCommand(&cobra.Command{
		Use:   "deploy [target]",
		Short: "Mirror the generated site to its web server",
		Long: `Mirrors the local site directory onto the configured remote path.
The optional target is accepted for compatibility and ignored: only the
configured target is supported.`,
		Args: cobra.MaximumNArgs(1),
		RunE: run,
	})
	return root
}

// deploy validates cfg, opens the remote session and mirrors the site.
func deploy(ctx context.Context, cfg conf.Conf) (*mirror.Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, syncerr.Config("validate", err)
	}

	klog.Infof("deploying %s to %s", cfg.LocalPath, cfg.Remote)
	session, err := sshconn.Dial(ctx, cfg.Remote, cfg.Auth, cfg.Timeout.Duration)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := session.Close(); err != nil {
			klog.V(2).Infof("closing session: %v", err)
		}
	}()

	mirrorConfig := mirror.Config{
		RemotePath: cfg.Remote.Path,
		Exclude:    filter.New(cfg.Exclude...),
		Delete:     cfg.Delete,
		Checksum:   cfg.Checksum,
		DryRun:     cfg.DryRun,
	}
	return mirror.Run(ctx, mirrorConfig, osfs.New(cfg.LocalPath), mirror.NewSFTPRemote(session.SFTP()))
}

func printSummary(out io.Writer, r *mirror.Result) {
	label := color.New(color.FgGreen, color.Bold).Sprint("deployed")
	if r.DryRun {
		label = color.New(color.FgYellow, color.Bold).Sprint("dry run")
	}
	fmt.Fprintf(out, "%s: %d uploaded (%s), %d directories created, %d deleted, %d unchanged in %s\n",
		label, r.Uploaded, humanize.Bytes(uint64(r.BytesSent)), r.Created, r.Deleted, r.Skipped,
		r.Duration.Round(time.Millisecond))
	for _, rel := range r.Kept {
		fmt.Fprintf(out, "%s: kept %s, it holds excluded files\n", color.YellowString("warning"), rel)
	}
}
