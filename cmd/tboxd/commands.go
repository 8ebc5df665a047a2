package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/loykin/tbox"
	"github.com/loykin/tbox/internal/config"
	"github.com/loykin/tbox/internal/fsutil"
	"github.com/loykin/tbox/internal/kvstore"
	"github.com/loykin/tbox/internal/pidfile"
	"github.com/loykin/tbox/pkg/client"
)

const defaultAPITimeout = 10 * time.Second

func (g *GlobalFlags) configOptions() config.Options {
	return config.Options{File: g.ConfigFile, Dir: g.ConfigDir, Profile: g.Profile}
}

// createRunCommand creates the run command
func createRunCommand(globalFlags *GlobalFlags, flags *RunFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the telematics agent in the foreground (or as a daemon)",
		Long: `Run the telematics agent until SIGINT/SIGTERM.

The process exit status is the agent's: 0 after a termination signal,
1 on a startup failure, otherwise the failing task's status.

Examples:
  ENV=prod tboxd run --config-dir /etc/tbox
  tboxd run --daemonize --pidfile /run/tboxd.pid --logfile /var/log/tboxd.out`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(cmd.Context(), globalFlags, flags)
		},
	}
	cmd.Flags().BoolVar(&flags.Daemonize, "daemonize", false, "run in background")
	cmd.Flags().StringVar(&flags.PidFile, "pidfile", "", "write the daemon PID to this file")
	cmd.Flags().StringVar(&flags.LogFile, "logfile", "", "redirect daemon stdout/stderr to this file")
	return cmd
}

func runAgent(ctx context.Context, globalFlags *GlobalFlags, flags *RunFlags) error {
	if flags.Daemonize {
		if !isDaemonSupported() {
			return errors.New("daemonize is not supported on this platform")
		}
		// the parent exits inside daemonize; only the child returns
		if err := daemonize(flags.PidFile, flags.LogFile); err != nil {
			return err
		}
	}
	if flags.PidFile != "" {
		pid := os.Getpid()
		if err := pidfile.Acquire(flags.PidFile, pid); err != nil {
			return err
		}
		defer func() { _ = pidfile.Release(flags.PidFile, pid) }()
	}

	c := tbox.New(&agent{}, tbox.WithName("tboxd"), tbox.WithConfigOptions(globalFlags.configOptions()))
	if code := c.Run(ctx); code != tbox.ExitOK {
		return &exitError{code: code}
	}
	return nil
}

// createKVCommand creates the kv command group
func createKVCommand(globalFlags *GlobalFlags, flags *KVFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kv",
		Short: "Read or change persisted identity values",
		Long: `Read or change the values persisted across restarts.

Without --api-url the store configured for the profile is opened directly.
With --api-url the running daemon's admin API is used instead.

Examples:
  tboxd kv get --key vin
  tboxd kv set --key iccid --value 8949020000000000001
  tboxd kv delete --key battery_pack_code --api-url http://127.0.0.1:8089/api`,
	}
	cmd.PersistentFlags().StringVar(&flags.Key, "key", "", "key name (vin, iccid, battery_pack_code) or number")
	addAPIFlags(cmd.PersistentFlags(), &flags.API, "")
	_ = cmd.MarkPersistentFlagRequired("key")

	get := &cobra.Command{
		Use:   "get",
		Short: "Print a stored value",
		RunE: func(cmd *cobra.Command, args []string) error {
			return kvGet(cmd.Context(), cmd.OutOrStdout(), globalFlags, flags)
		},
	}
	set := &cobra.Command{
		Use:   "set",
		Short: "Store a value",
		RunE: func(cmd *cobra.Command, args []string) error {
			return kvSet(cmd.Context(), globalFlags, flags)
		},
	}
	set.Flags().StringVar(&flags.Value, "value", "", "value to store")
	_ = set.MarkFlagRequired("value")
	del := &cobra.Command{
		Use:   "delete",
		Short: "Remove a stored value",
		RunE: func(cmd *cobra.Command, args []string) error {
			return kvDelete(cmd.Context(), globalFlags, flags)
		},
	}
	cmd.AddCommand(get, set, del)
	return cmd
}

// kvBackend is either the local store or a daemon's admin API.
type kvBackend interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

type localKV struct{ store kvstore.Store }

func (l localKV) Get(ctx context.Context, key string) (string, bool, error) {
	k, err := kvstore.ParseKey(key)
	if err != nil {
		return "", false, err
	}
	return l.store.Read(ctx, k)
}

func (l localKV) Set(ctx context.Context, key, value string) error {
	k, err := kvstore.ParseKey(key)
	if err != nil {
		return err
	}
	return l.store.Write(ctx, k, value)
}

func (l localKV) Delete(ctx context.Context, key string) error {
	k, err := kvstore.ParseKey(key)
	if err != nil {
		return err
	}
	return l.store.Delete(ctx, k)
}

func (l localKV) Close() error { return l.store.Close() }

type remoteKV struct{ c *client.Client }

func (r remoteKV) Get(ctx context.Context, key string) (string, bool, error) {
	return r.c.GetValue(ctx, key)
}

func (r remoteKV) Set(ctx context.Context, key, value string) error {
	return r.c.SetValue(ctx, key, value)
}

func (r remoteKV) Delete(ctx context.Context, key string) error { return r.c.DeleteValue(ctx, key) }
func (r remoteKV) Close() error                                 { return nil }

func openKV(globalFlags *GlobalFlags, flags *KVFlags) (kvBackend, error) {
	if flags.API.URL != "" {
		c, err := newClient(flags.API)
		if err != nil {
			return nil, err
		}
		return remoteKV{c: c}, nil
	}
	cfg, err := config.Load(globalFlags.configOptions())
	if err != nil {
		return nil, err
	}
	st, err := kvstore.Open(cfg.Store)
	if err != nil {
		return nil, err
	}
	return localKV{store: st}, nil
}

func kvGet(ctx context.Context, out io.Writer, globalFlags *GlobalFlags, flags *KVFlags) error {
	b, err := openKV(globalFlags, flags)
	if err != nil {
		return err
	}
	defer func() { _ = b.Close() }()
	v, ok, err := b.Get(ctx, flags.Key)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s is not set", flags.Key)
	}
	_, err = fmt.Fprintln(out, v)
	return err
}

func kvSet(ctx context.Context, globalFlags *GlobalFlags, flags *KVFlags) error {
	b, err := openKV(globalFlags, flags)
	if err != nil {
		return err
	}
	defer func() { _ = b.Close() }()
	return b.Set(ctx, flags.Key, flags.Value)
}

func kvDelete(ctx context.Context, globalFlags *GlobalFlags, flags *KVFlags) error {
	b, err := openKV(globalFlags, flags)
	if err != nil {
		return err
	}
	defer func() { _ = b.Close() }()
	return b.Delete(ctx, flags.Key)
}

// createStatusCommand creates the status command
func createStatusCommand(flags *StatusFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the lifecycle status of a running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus(cmd.Context(), cmd.OutOrStdout(), flags)
		},
	}
	addAPIFlags(cmd.Flags(), &flags.API, client.DefaultBaseURL)
	return cmd
}

func showStatus(ctx context.Context, out io.Writer, flags *StatusFlags) error {
	c, err := newClient(flags.API)
	if err != nil {
		return err
	}
	if !c.IsReachable(ctx) {
		return fmt.Errorf("daemon not reachable at %s", flags.API.URL)
	}
	st, err := c.Status(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "app:       %s\n", st.App)
	_, _ = fmt.Fprintf(out, "profile:   %s\n", st.Profile)
	_, _ = fmt.Fprintf(out, "phase:     %s\n", st.Phase)
	_, _ = fmt.Fprintf(out, "shutdown:  %t\n", st.ShutdownRequested)
	if !st.StartedAt.IsZero() {
		_, _ = fmt.Fprintf(out, "started:   %s (%s ago)\n", st.StartedAt.Format(time.RFC3339), time.Since(st.StartedAt).Truncate(time.Second))
	}
	return nil
}

func addAPIFlags(fs *pflag.FlagSet, f *APIFlags, defaultURL string) {
	fs.StringVar(&f.URL, "api-url", defaultURL, "admin API base URL of a running daemon")
	fs.DurationVar(&f.Timeout, "api-timeout", defaultAPITimeout, "admin API request timeout")
	fs.StringVar(&f.CACert, "api-ca-cert", "", "CA certificate for an HTTPS admin API")
	fs.BoolVar(&f.Insecure, "api-insecure", false, "skip TLS verification of the admin API")
}

// newClient builds an admin API client; a missing CA file is an error.
func newClient(f APIFlags) (*client.Client, error) {
	cfg := client.Config{BaseURL: f.URL, Timeout: f.Timeout, Insecure: f.Insecure}
	if f.CACert != "" {
		if !fsutil.Exists(nil, f.CACert) {
			return nil, fmt.Errorf("CA certificate not found: %s", f.CACert)
		}
		cfg.TLS = &client.TLSClientConfig{Enabled: true, CACert: f.CACert}
	}
	return client.New(cfg), nil
}
