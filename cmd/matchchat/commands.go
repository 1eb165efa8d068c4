package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"matchchat/internal/chat"
	"matchchat/internal/types"

	"github.com/spf13/cobra"
)

var (
	groupName    string
	groupMembers []int64
	reportReason string
)

var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "List your channels",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, e *chat.Engine) error {
			if err := e.RefreshDirectory(ctx); err != nil {
				return err
			}
			printChannels(cmd.OutOrStdout(), e.View().Channels)
			return nil
		})
	},
}

var sendCmd = &cobra.Command{
	Use:   "send [channel-id] [text...]",
	Short: "Send a message to a channel",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		channelID, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withEngine(func(ctx context.Context, e *chat.Engine) error {
			m, err := e.Send(ctx, channelID, strings.Join(args[1:], " "))
			if err != nil {
				return describe("send", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatMessage(m))
			return nil
		})
	},
}

var askCmd = &cobra.Command{
	Use:   "ask [prompt...]",
	Short: "Ask the study assistant (or use --suggest / --schedule)",
	RunE: func(cmd *cobra.Command, args []string) error {
		suggest, _ := cmd.Flags().GetBool("suggest")
		schedule, _ := cmd.Flags().GetBool("schedule")
		return withEngine(func(ctx context.Context, e *chat.Engine) error {
			var (
				m   types.Message
				err error
			)
			switch {
			case suggest:
				m, err = e.Suggest(ctx)
			case schedule:
				m, err = e.Schedule(ctx)
			default:
				m, err = e.Ask(ctx, strings.Join(args, " "))
			}
			if err != nil {
				return describe("assistant", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), m.Text)
			return nil
		})
	},
}

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Create groups and add members",
}

var groupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a group with you and --member ids",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, e *chat.Engine) error {
			ch, err := e.CreateGroup(ctx, groupName, groupMembers)
			if err != nil {
				return describe("create group", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created group %d %q with members %v\n", ch.ID, ch.DisplayName, ch.ParticipantIDs())
			return nil
		})
	},
}

var groupAddCmd = &cobra.Command{
	Use:   "add [channel-id]",
	Short: "Add --member ids to a group (existing members are kept)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		channelID, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withEngine(func(ctx context.Context, e *chat.Engine) error {
			if err := e.RefreshDirectory(ctx); err != nil {
				return describe("list channels", err)
			}
			ch, err := e.UpdateGroup(ctx, channelID, groupMembers)
			if err != nil {
				return describe("update group", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "group %d members: %v\n", ch.ID, ch.ParticipantIDs())
			return nil
		})
	},
}

var blockCmd = &cobra.Command{
	Use:   "block [user-id]",
	Short: "Block a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withEngine(func(ctx context.Context, e *chat.Engine) error {
			if err := e.Block(ctx, target); err != nil {
				return describe("block", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "blocked %d\n", target)
			return nil
		})
	},
}

var reportCmd = &cobra.Command{
	Use:   "report [user-id]",
	Short: "Report a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withEngine(func(ctx context.Context, e *chat.Engine) error {
			if err := e.Report(ctx, target, reportReason); err != nil {
				return describe("report", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reported %d\n", target)
			return nil
		})
	},
}

func init() {
	askCmd.Flags().Bool("suggest", false, "Ask for conversation starters")
	askCmd.Flags().Bool("schedule", false, "Ask for meeting-time proposals")

	groupCreateCmd.Flags().StringVar(&groupName, "name", "", "Group name")
	groupCreateCmd.Flags().Int64SliceVar(&groupMembers, "member", nil, "Member user id (repeatable)")
	groupAddCmd.Flags().Int64SliceVar(&groupMembers, "member", nil, "Member user id to add (repeatable)")
	groupCmd.AddCommand(groupCreateCmd)
	groupCmd.AddCommand(groupAddCmd)

	reportCmd.Flags().StringVar(&reportReason, "reason", "", "Reason for the report")
}

// withEngine runs fn against a fresh engine with the --timeout deadline.
func withEngine(fn func(ctx context.Context, e *chat.Engine) error) error {
	ctx, cancel := signalContext(context.Background())
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, timeout)
	defer cancelTimeout()

	engine, cleanup, err := buildEngine(ctx)
	if err != nil {
		return err
	}
	defer cleanup()
	return fn(ctx, engine)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

// describe prefixes err with its class so scripts can tell retryable failures apart.
func describe(op string, err error) error {
	return fmt.Errorf("%s failed (%s): %w", op, types.Classify(err), err)
}
