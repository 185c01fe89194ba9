package sink

import (
	"context"
	"fmt"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ovaphlow/pitchfork/service-secrets/internal/credential/entity"
)

// secretClient is the subset of the Secret Manager client the sink uses.
type secretClient interface {
	GetSecret(ctx context.Context, req *secretmanagerpb.GetSecretRequest, opts ...gax.CallOption) (*secretmanagerpb.Secret, error)
	CreateSecret(ctx context.Context, req *secretmanagerpb.CreateSecretRequest, opts ...gax.CallOption) (*secretmanagerpb.Secret, error)
	AddSecretVersion(ctx context.Context, req *secretmanagerpb.AddSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.SecretVersion, error)
}

// SecretManagerSink adds each secret as a new version of a Google Cloud
// Secret Manager secret named after it, creating missing secrets with
// automatic replication.
type SecretManagerSink struct {
	client    secretClient
	projectID string
}

func NewSecretManagerSink(client secretClient, projectID string) *SecretManagerSink {
	return &SecretManagerSink{client: client, projectID: projectID}
}

// DialSecretManager creates a client using application default credentials.
// The caller closes the returned client.
func DialSecretManager(ctx context.Context) (*secretmanager.Client, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Secret Manager client: %w", err)
	}
	return client, nil
}

func (s *SecretManagerSink) Name() string { return "gcp" }

func (s *SecretManagerSink) Store(ctx context.Context, b *entity.Bundle) error {
	parent := fmt.Sprintf("projects/%s", s.projectID)
	for _, e := range b.Entries {
		secretName := fmt.Sprintf("%s/secrets/%s", parent, e.Name)
		if err := s.ensureSecret(ctx, parent, secretName, e.Name); err != nil {
			return err
		}
		_, err := s.client.AddSecretVersion(ctx, &secretmanagerpb.AddSecretVersionRequest{
			Parent:  secretName,
			Payload: &secretmanagerpb.SecretPayload{Data: []byte(e.Value)},
		})
		if err != nil {
			return fmt.Errorf("failed to add secret version %s: %w", e.Name, err)
		}
	}
	return nil
}

func (s *SecretManagerSink) ensureSecret(ctx context.Context, parent, secretName, id string) error {
	_, err := s.client.GetSecret(ctx, &secretmanagerpb.GetSecretRequest{Name: secretName})
	if err == nil {
		return nil
	}
	if status.Code(err) != codes.NotFound {
		return fmt.Errorf("failed to get secret %s: %w", id, err)
	}
	_, err = s.client.CreateSecret(ctx, &secretmanagerpb.CreateSecretRequest{
		Parent:   parent,
		SecretId: id,
		Secret: &secretmanagerpb.Secret{
			Replication: &secretmanagerpb.Replication{
				Replication: &secretmanagerpb.Replication_Automatic_{
					Automatic: &secretmanagerpb.Replication_Automatic{},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create secret %s: %w", id, err)
	}
	return nil
}
