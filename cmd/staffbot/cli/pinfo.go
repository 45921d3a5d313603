package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/JeremyFirst/Ds-Bot-2.0/internal/pinfo"
	"github.com/JeremyFirst/Ds-Bot-2.0/internal/steamid"
)

func pinfoCmd() *cobra.Command {
	var (
		timeout  time.Duration
		attempts int
		raw      bool
	)
	cmd := &cobra.Command{
		Use:   "pinfo <steamid>",
		Short: "Query a player's privilege over RCON and show how it parses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := steamid.Normalize(args[0])
			if !steamid.Validate(id) {
				return fmt.Errorf("invalid steam id %q", args[0])
			}
			e, err := loadEnv()
			if err != nil {
				return err
			}
			if timeout <= 0 {
				timeout = e.cfg.RCONTimeout
			}
			if attempts <= 0 {
				attempts = e.cfg.RCONRetryAttempts
			}
			response, err := e.rconClient().PlayerInfo(cmd.Context(), id, timeout, attempts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if raw {
				fmt.Fprintln(out, response)
			}
			fact, err := pinfo.New(e.settings.GroupNames()).Parse(response)
			if errors.Is(err, pinfo.ErrNotRecognized) {
				fmt.Fprintln(out, "response not recognized; rerun with --raw to inspect it")
				return err
			}
			if !fact.HasPrivilege {
				fmt.Fprintln(out, "no privileges")
				return nil
			}
			expires := "permanent"
			if fact.ExpiresAt != nil {
				expires = fact.ExpiresAt.Format(time.RFC3339)
			}
			fmt.Fprintf(out, "group=%s expires=%s\n", fact.Group, expires)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "per attempt timeout (default RCON_TIMEOUT)")
	cmd.Flags().IntVar(&attempts, "attempts", 0, "attempts before giving up (default RCON_RETRY_ATTEMPTS)")
	cmd.Flags().BoolVar(&raw, "raw", false, "print the raw console response")
	return cmd
}
