package sheetsapi

import (
	"context"
	"fmt"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

// NewService builds a Sheets service authenticated with service-account credentials JSON.
// Extra options are appended after the credentials, so tests can point the service elsewhere.
func NewService(ctx context.Context, credentialsJSON []byte, opts ...option.ClientOption) (*gsheets.Service, error) {
	if len(credentialsJSON) == 0 {
		return nil, fmt.Errorf("service account credentials are empty")
	}
	creds, err := google.CredentialsFromJSON(ctx, credentialsJSON, gsheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account credentials: %w", err)
	}

	clientOptions := append([]option.ClientOption{option.WithCredentials(creds)}, opts...)
	svc, err := gsheets.NewService(ctx, clientOptions...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return svc, nil
}
