package validation

import (
	"fmt"
	"strings"
	"unicode"

	"sendqueue/internal/constants"
	"sendqueue/internal/errors"
	"sendqueue/internal/models"
)

// ValidateIdentifier checks a message, conversation or job id.
func ValidateIdentifier(field, value string) error {
	if value == "" {
		return errors.NewValidationError(field, value, fmt.Sprintf("%s cannot be empty", field))
	}
	if len(value) > constants.MaxIdentifierLength {
		return errors.NewValidationError(field, value,
			fmt.Sprintf("%s too long (max %d characters)", field, constants.MaxIdentifierLength))
	}
	for _, char := range value {
		if unicode.IsControl(char) || unicode.IsSpace(char) {
			return errors.NewValidationError(field, value, fmt.Sprintf("%s contains invalid characters", field))
		}
	}
	return nil
}

// ValidateE164 validates a "+<digits>" phone number
func ValidateE164(phone string) error {
	if !strings.HasPrefix(phone, "+") {
		return errors.New(errors.ErrCodeInvalidInput, "phone number must start with +")
	}
	digits := phone[1:]
	if len(digits) < constants.MinPhoneNumberLength || len(digits) > constants.MaxPhoneNumberLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("phone number must have %d to %d digits", constants.MinPhoneNumberLength, constants.MaxPhoneNumberLength))
	}
	for _, char := range digits {
		if !unicode.IsDigit(char) {
			return errors.New(errors.ErrCodeInvalidInput, "phone number must contain only digits")
		}
	}
	return nil
}

// ValidateSyncRecords checks that every record names the message it
// acknowledges by author and sent timestamp.
func ValidateSyncRecords(records []models.SyncRecord) error {
	if len(records) > constants.MaxSyncRecordsPerJob {
		return errors.NewValidationError("syncs", fmt.Sprint(len(records)),
			fmt.Sprintf("too many sync records (max %d)", constants.MaxSyncRecordsPerJob))
	}
	for i, record := range records {
		field := fmt.Sprintf("syncs[%d]", i)
		if record.Timestamp <= 0 {
			return errors.NewValidationError(field+".timestamp", fmt.Sprint(record.Timestamp), "timestamp must be positive")
		}
		if record.SenderACI == "" && record.SenderE164 == "" {
			return errors.NewValidationError(field, "", "senderAci or senderE164 is required")
		}
		if record.SenderE164 != "" {
			if err := ValidateE164(record.SenderE164); err != nil {
				return errors.Wrap(err, errors.ErrCodeValidationFailed, field+".senderE164 is invalid")
			}
		}
		if record.SenderACI != "" {
			if err := ValidateIdentifier(field+".senderAci", record.SenderACI); err != nil {
				return err
			}
		}
	}
	return nil
}

// ValidateRevision rejects negative group revisions.
func ValidateRevision(revision *int) error {
	if revision != nil && *revision < 0 {
		return errors.NewValidationError("revision", fmt.Sprint(*revision), "revision cannot be negative")
	}
	return nil
}
