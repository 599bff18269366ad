package cli

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"skyprefs/pkg/config"
	"skyprefs/pkg/monitoring"
	"skyprefs/pkg/redis"
	"skyprefs/pkg/version"
)

// healthNSID is the unauthenticated liveness method every PDS serves.
const healthNSID = "_health"

func newHealthCmd(state *rootState) *cobra.Command {
	return &cobra.Command{
		Use:         "health",
		Short:       "Check the configuration, the PDS and the labeler store",
		Annotations: map[string]string{skipApp: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			checker, closeChecks := healthChecks(cmd.Context(), config.LoadAppview())
			defer closeChecks()

			status := checker.CheckHealth()
			p := state.printer(cmd)
			if p.json() {
				if err := p.writeJSON(status); err != nil {
					return err
				}
			} else {
				p.heading("skyprefs " + status.Status)
				names := make([]string, 0, len(status.Checks))
				for name := range status.Checks {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					res := status.Checks[name]
					p.field(name, res.Status+"  "+res.Message)
				}
			}
			if status.Status == monitoring.StatusUnhealthy {
				return errors.New("health check failed")
			}
			return nil
		},
	}
}

// healthChecks builds the checks for cfg. The returned func releases any
// connection the checks hold.
func healthChecks(ctx context.Context, cfg config.Appview) (*monitoring.HealthChecker, func()) {
	hc := monitoring.NewHealthChecker("skyprefs", version.Version)
	release := func() {}

	required := map[string]string{
		"BSKY_SERVICE":      cfg.Service,
		"BSKY_PROXY_DID":    cfg.BskyProxyDID,
		"APPVIEW_PROXY_DID": cfg.AppviewProxyDID,
		"DISCOVER_FEED_URI": cfg.DiscoverFeedURI,
	}
	switch cfg.LabelerStore {
	case "file":
		required["LABELER_STORE_PATH"] = cfg.LabelerStorePath
	case "redis":
		required["REDIS_URL"] = cfg.RedisURL
		client, err := redis.NewClientFromURL(ctx, cfg.RedisURL)
		if err != nil {
			hc.AddCheck("labeler_store", func() monitoring.CheckResult {
				return monitoring.CheckResult{Status: monitoring.StatusUnhealthy, Message: err.Error()}
			})
		} else {
			hc.AddCheck("labeler_store", monitoring.RedisHealthCheck(client))
			release = func() { _ = client.Close() }
		}
	}
	hc.AddCheck("config", monitoring.ConfigurationHealthCheck(required))
	hc.AddCheck("service", monitoring.HTTPServiceHealthCheck("pds", strings.TrimRight(cfg.Service, "/")+"/xrpc/"+healthNSID))
	return hc, release
}
