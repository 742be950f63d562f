package privacy

import (
	"strings"

	"sendqueue/internal/constants"
)

// MaskPhoneNumber masks an E.164 number showing only the last 4 digits
// Example: "+1234567890" -> "+******7890"
func MaskPhoneNumber(phone string) string {
	if phone == "" {
		return ""
	}
	if strings.HasPrefix(phone, "+") {
		return "+" + maskString(phone[1:], constants.DefaultIdentifierMaskLength)
	}
	return maskString(phone, constants.DefaultIdentifierMaskLength)
}

// MaskServiceID masks an account identifier, keeping any kind prefix
// Example: "PNI:5a1f...c0de" -> "PNI:****...c0de"
func MaskServiceID(serviceID string) string {
	if serviceID == "" {
		return ""
	}
	if idx := strings.Index(serviceID, ":"); idx > 0 && idx < len(serviceID)-1 {
		return serviceID[:idx+1] + maskString(serviceID[idx+1:], constants.DefaultIdentifierMaskLength)
	}
	if strings.HasPrefix(serviceID, "+") {
		return MaskPhoneNumber(serviceID)
	}
	return maskString(serviceID, constants.DefaultIdentifierMaskLength)
}

// MaskConversationID masks a local conversation identifier
func MaskConversationID(conversationID string) string {
	return maskString(conversationID, constants.DefaultIdentifierMaskLength)
}

// MaskMessageID masks a message ID, keeping its tail for correlation
func MaskMessageID(messageID string) string {
	return maskString(messageID, constants.DefaultMessageIDLength)
}

// maskString masks a string showing only the last n characters
func maskString(s string, keepLast int) string {
	if s == "" {
		return ""
	}
	if len(s) <= keepLast {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-keepLast) + s[len(s)-keepLast:]
}

// MaskSensitiveFields applies appropriate masking to common logging fields
func MaskSensitiveFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}

	masked := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		s, ok := v.(string)
		if !ok {
			masked[k] = v
			continue
		}
		switch k {
		case "phone", "sender_e164", "senderE164":
			masked[k] = MaskPhoneNumber(s)
		case "service_id", "serviceId", "sender_aci", "senderAci", "recipient", "target":
			masked[k] = MaskServiceID(s)
		case "conversation_id", "conversationId":
			masked[k] = MaskConversationID(s)
		case "message_id", "messageId":
			masked[k] = MaskMessageID(s)
		default:
			masked[k] = v
		}
	}
	return masked
}
