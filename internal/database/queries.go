package database

// Job queries
const (
	InsertJobQuery = `
		INSERT INTO jobs (
			id, job_type, payload, enqueued_at, attempt, max_attempts, deadline_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	SelectPendingJobsQuery = `
		SELECT id, job_type, payload, enqueued_at, attempt, max_attempts, deadline_ms
		FROM jobs
		ORDER BY enqueued_at ASC, id ASC
	`

	SelectJobByIDQuery = `
		SELECT id, job_type, payload, enqueued_at, attempt, max_attempts, deadline_ms
		FROM jobs
		WHERE id = ?
	`

	IncrementJobAttemptQuery = `
		UPDATE jobs
		SET attempt = attempt + 1
		WHERE id = ?
		RETURNING attempt
	`

	DeleteJobQuery = `
		DELETE FROM jobs
		WHERE id = ?
	`

	CountJobsQuery = `
		SELECT COUNT(*) FROM jobs
	`
)

// Message and conversation queries
const (
	UpsertMessageQuery = `
		INSERT INTO messages (id, conversation_id, message_type, data, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			conversation_id = excluded.conversation_id,
			message_type = excluded.message_type,
			data = excluded.data,
			updated_at = CURRENT_TIMESTAMP
	`

	SelectMessageQuery = `
		SELECT data FROM messages WHERE id = ?
	`

	UpsertConversationQuery = `
		INSERT INTO conversations (id, conversation_type, data, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			conversation_type = excluded.conversation_type,
			data = excluded.data,
			updated_at = CURRENT_TIMESTAMP
	`

	SelectConversationQuery = `
		SELECT data FROM conversations WHERE id = ?
	`

	UpsertSettingQuery = `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`

	SelectSettingQuery = `
		SELECT value FROM settings WHERE key = ?
	`
)

const settingOurConversationID = "our_conversation_id"
