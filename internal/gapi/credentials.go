package gapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// requiredKeyFields are the service account key fields the JWT token exchange reads.
var requiredKeyFields = []string{"private_key", "client_email", "token_uri", "project_id"}

// ValidateCredentials checks that data is a Google service account key. User
// OAuth credentials (type "authorized_user") cannot act on the shared folder
// and are rejected.
func ValidateCredentials(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return errors.New("service account key is empty")
	}

	var key map[string]any
	if err := json.Unmarshal(data, &key); err != nil {
		return fmt.Errorf("service account key is not valid JSON: %w", err)
	}

	keyType, _ := key["type"].(string)
	switch keyType {
	case "service_account":
	case "":
		return errors.New(`service account key has no "type" field`)
	default:
		return fmt.Errorf("credentials are of type %q, expected a service_account key", keyType)
	}

	for _, field := range requiredKeyFields {
		if v, _ := key[field].(string); v == "" {
			return fmt.Errorf("service account key is missing %q", field)
		}
	}
	return nil
}
