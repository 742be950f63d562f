package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"sendqueue/internal/models"
	"sendqueue/internal/validation"

	"github.com/spf13/cobra"
)

func enqueueCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Add a delivery job to the store",
	}
	cmd.AddCommand(enqueueMessageCmd(a), enqueueReactionCmd(a), enqueueSyncCmd(a))
	return cmd
}

func enqueueMessageCmd(a *app) *cobra.Command {
	var revision int
	cmd := &cobra.Command{
		Use:   "message <message-id> <conversation-id>",
		Short: "Send an outgoing message to its pending recipients",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateIDs(args[0], args[1]); err != nil {
				return err
			}
			record, err := a.service.EnqueueNormalMessage(cmd.Context(), args[0], args[1], revisionFlag(cmd, revision))
			if err != nil {
				return fmt.Errorf("failed to enqueue message: %w", err)
			}
			printRecord(cmd, record)
			return nil
		},
	}
	cmd.Flags().IntVar(&revision, "revision", 0, "Group revision the message was composed against")
	return cmd
}

func enqueueReactionCmd(a *app) *cobra.Command {
	var revision int
	cmd := &cobra.Command{
		Use:   "reaction <message-id> <conversation-id>",
		Short: "Send our newest pending reaction on a message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateIDs(args[0], args[1]); err != nil {
				return err
			}
			record, err := a.service.EnqueueReaction(cmd.Context(), args[0], args[1], revisionFlag(cmd, revision))
			if err != nil {
				return fmt.Errorf("failed to enqueue reaction: %w", err)
			}
			printRecord(cmd, record)
			return nil
		},
	}
	cmd.Flags().IntVar(&revision, "revision", 0, "Group revision the reaction was made against")
	return cmd
}

func validateIDs(messageID, conversationID string) error {
	if err := validation.ValidateIdentifier("message-id", messageID); err != nil {
		return err
	}
	return validation.ValidateIdentifier("conversation-id", conversationID)
}

func revisionFlag(cmd *cobra.Command, revision int) *int {
	if !cmd.Flags().Changed("revision") {
		return nil
	}
	return &revision
}

func enqueueSyncCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:       "sync <read|view|viewOnceOpen>",
		Short:     "Send read, view or view-once acknowledgements to our other devices",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(models.SyncKindRead), string(models.SyncKindView), string(models.SyncKindViewOnceOpen)},
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, file)
			if err != nil {
				return err
			}
			var syncs []models.SyncRecord
			if err := json.Unmarshal(raw, &syncs); err != nil {
				return fmt.Errorf("invalid sync records JSON: %w", err)
			}
			if err := validation.ValidateSyncRecords(syncs); err != nil {
				return err
			}

			var record *models.JobRecord
			switch models.SyncKind(args[0]) {
			case models.SyncKindRead:
				record, err = a.service.EnqueueReadSyncs(cmd.Context(), syncs)
			case models.SyncKindView:
				record, err = a.service.EnqueueViewSyncs(cmd.Context(), syncs)
			case models.SyncKindViewOnceOpen:
				record, err = a.service.EnqueueViewOnceOpenSyncs(cmd.Context(), syncs)
			default:
				return fmt.Errorf("unknown sync kind %q", args[0])
			}
			if err != nil {
				return fmt.Errorf("failed to enqueue syncs: %w", err)
			}
			printRecord(cmd, record)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "JSON array of sync records, - for stdin")
	return cmd
}

func readInput(cmd *cobra.Command, file string) ([]byte, error) {
	if file == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", file, err)
	}
	return raw, nil
}

func retryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <message-id>",
		Short: "Reset failed recipients of a message and send again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			record, err := a.service.RetryFailedMessage(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to retry message: %w", err)
			}
			printRecord(cmd, record)
			return nil
		},
	}
}
