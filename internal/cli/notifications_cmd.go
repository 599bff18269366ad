package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"skyprefs/pkg/clients/bsky"
)

type notificationReason struct {
	name       string
	filterable func(*bsky.NotificationPreferences) **bsky.FilterablePreference
	plain      func(*bsky.NotificationPreferences) **bsky.NotificationPreference
}

var notificationReasons = []notificationReason{
	{name: "follow", filterable: func(p *bsky.NotificationPreferences) **bsky.FilterablePreference { return &p.Follow }},
	{name: "like", filterable: func(p *bsky.NotificationPreferences) **bsky.FilterablePreference { return &p.Like }},
	{name: "likeViaRepost", filterable: func(p *bsky.NotificationPreferences) **bsky.FilterablePreference { return &p.LikeViaRepost }},
	{name: "mention", filterable: func(p *bsky.NotificationPreferences) **bsky.FilterablePreference { return &p.Mention }},
	{name: "quote", filterable: func(p *bsky.NotificationPreferences) **bsky.FilterablePreference { return &p.Quote }},
	{name: "reply", filterable: func(p *bsky.NotificationPreferences) **bsky.FilterablePreference { return &p.Reply }},
	{name: "repost", filterable: func(p *bsky.NotificationPreferences) **bsky.FilterablePreference { return &p.Repost }},
	{name: "repostViaRepost", filterable: func(p *bsky.NotificationPreferences) **bsky.FilterablePreference { return &p.RepostViaRepost }},
	{name: "starterpackJoined", plain: func(p *bsky.NotificationPreferences) **bsky.NotificationPreference { return &p.StarterpackJoined }},
	{name: "subscribedPost", plain: func(p *bsky.NotificationPreferences) **bsky.NotificationPreference { return &p.SubscribedPost }},
	{name: "unverified", plain: func(p *bsky.NotificationPreferences) **bsky.NotificationPreference { return &p.Unverified }},
	{name: "verified", plain: func(p *bsky.NotificationPreferences) **bsky.NotificationPreference { return &p.Verified }},
}

func lookupReason(name string) (notificationReason, bool) {
	for _, r := range notificationReasons {
		if strings.EqualFold(r.name, name) {
			return r, true
		}
	}
	return notificationReason{}, false
}

func newNotificationsCmd(state *rootState) *cobra.Command {
	cmd := &cobra.Command{Use: "notifications", Short: "Show and change notification settings"}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show notification settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := state.signedIn(); err != nil {
				return err
			}
			settings, err := state.app.Notifications.Settings(cmd.Context())
			if err != nil {
				return err
			}
			return state.printer(cmd).notificationSettings(settings)
		},
	})
	cmd.AddCommand(newNotificationsSetCmd(state))
	return cmd
}

func newNotificationsSetCmd(state *rootState) *cobra.Command {
	var (
		include    string
		list, push bool
	)
	cmd := &cobra.Command{
		Use:   "set <reason|chat>",
		Short: "Change one notification reason; unspecified flags keep their value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := state.signedIn(); err != nil {
				return err
			}
			f := cmd.Flags()
			if f.Changed("include") {
				switch include {
				case bsky.IncludeAll, bsky.IncludeFollows, bsky.IncludeAccepted:
				default:
					return fmt.Errorf("include must be all, follows or accepted")
				}
			}

			current, err := state.app.Notifications.Settings(cmd.Context())
			if err != nil {
				return err
			}

			var update bsky.NotificationPreferences
			name := args[0]
			if strings.EqualFold(name, "chat") {
				if f.Changed("list") {
					return fmt.Errorf("chat has no list setting")
				}
				chat := bsky.ChatPreference{Include: bsky.IncludeAll}
				if current.Chat != nil {
					chat = *current.Chat
				}
				if f.Changed("include") {
					chat.Include = include
				}
				if f.Changed("push") {
					chat.Push = push
				}
				update.Chat = &chat
			} else {
				r, ok := lookupReason(name)
				if !ok {
					return fmt.Errorf("unknown notification reason %q", name)
				}
				if r.filterable != nil {
					v := bsky.FilterablePreference{Include: bsky.IncludeAll, List: true, Push: true}
					if cur := *r.filterable(&current); cur != nil {
						v = *cur
					}
					if f.Changed("include") {
						v.Include = include
					}
					if f.Changed("list") {
						v.List = list
					}
					if f.Changed("push") {
						v.Push = push
					}
					*r.filterable(&update) = &v
				} else {
					if f.Changed("include") {
						return fmt.Errorf("%s has no include setting", r.name)
					}
					v := bsky.NotificationPreference{List: true, Push: true}
					if cur := *r.plain(&current); cur != nil {
						v = *cur
					}
					if f.Changed("list") {
						v.List = list
					}
					if f.Changed("push") {
						v.Push = push
					}
					*r.plain(&update) = &v
				}
				name = r.name
			}

			stored, err := state.app.Notifications.Update(cmd.Context(), update)
			if err != nil {
				return err
			}
			p := state.printer(cmd)
			if p.json() {
				return p.notificationSettings(stored)
			}
			return p.done("Updated %s notifications", name)
		},
	}
	cmd.Flags().StringVar(&include, "include", "", "all|follows|accepted")
	cmd.Flags().BoolVar(&list, "list", true, "show in the notification list")
	cmd.Flags().BoolVar(&push, "push", true, "send push notifications")
	return cmd
}
