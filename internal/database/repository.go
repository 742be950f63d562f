package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	apperrors "sendqueue/internal/errors"
	"sendqueue/internal/models"
)

// GetMessage loads a message or returns a NOT_FOUND error.
func (d *Database) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	var msg models.Message
	if err := d.loadRecord(ctx, SelectMessageQuery, id, "message", &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (d *Database) SaveMessage(ctx context.Context, msg *models.Message) error {
	data, err := d.encodeRecord(msg)
	if err != nil {
		return apperrors.NewDatabaseError("encode message", err)
	}
	err = d.withRetry(ctx, "save message", func() error {
		_, err := d.db.ExecContext(ctx, UpsertMessageQuery, msg.ID, msg.ConversationID, string(msg.Type), data)
		return err
	})
	if err != nil {
		return apperrors.NewDatabaseError("save message", err)
	}
	return nil
}

func (d *Database) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	if err := d.loadRecord(ctx, SelectConversationQuery, id, "conversation", &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// UpdateConversation inserts or replaces a conversation.
func (d *Database) UpdateConversation(ctx context.Context, conv *models.Conversation) error {
	data, err := d.encodeRecord(conv)
	if err != nil {
		return apperrors.NewDatabaseError("encode conversation", err)
	}
	err = d.withRetry(ctx, "save conversation", func() error {
		_, err := d.db.ExecContext(ctx, UpsertConversationQuery, conv.ID, string(conv.Type), data)
		return err
	})
	if err != nil {
		return apperrors.NewDatabaseError("save conversation", err)
	}
	return nil
}

func (d *Database) GetOurConversationID(ctx context.Context) (string, error) {
	var id string
	err := d.db.QueryRowContext(ctx, SelectSettingQuery, settingOurConversationID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperrors.NewNotFoundError("setting", settingOurConversationID)
	}
	if err != nil {
		return "", apperrors.NewDatabaseError("load our conversation id", err)
	}
	return id, nil
}

// SetOurConversationID records which conversation is the local account.
func (d *Database) SetOurConversationID(ctx context.Context, id string) error {
	err := d.withRetry(ctx, "save our conversation id", func() error {
		_, err := d.db.ExecContext(ctx, UpsertSettingQuery, settingOurConversationID, id)
		return err
	})
	if err != nil {
		return apperrors.NewDatabaseError("save our conversation id", err)
	}
	return nil
}

func (d *Database) encodeRecord(v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return d.encryptor.Encrypt(string(raw))
}

func (d *Database) loadRecord(ctx context.Context, query, id, resource string, out interface{}) error {
	var stored string
	err := d.db.QueryRowContext(ctx, query, id).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NewNotFoundError(resource, id)
	}
	if err != nil {
		return apperrors.NewDatabaseError("load "+resource, err)
	}

	plaintext, err := d.encryptor.Decrypt(stored)
	if err != nil {
		return apperrors.NewDatabaseError("decrypt "+resource, err)
	}
	if err := json.Unmarshal([]byte(plaintext), out); err != nil {
		return apperrors.NewDatabaseError("decode "+resource, fmt.Errorf("%s %s: %w", resource, id, err))
	}
	return nil
}
