package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/agroscan/agroscan-core/src/config"
	"github.com/agroscan/agroscan-core/src/models"
)

const (
	keyAccessToken  = "agroscan:auth:access_token"
	keyRefreshToken = "agroscan:auth:refresh_token"
	keyTokenExpiry  = "agroscan:auth:token_expiry"
	keyUserEmail    = "agroscan:auth:user_email"
	keyUserName     = "agroscan:auth:user_name"
	keyUserPicture  = "agroscan:auth:user_picture"

	// Device ID survives logout; it identifies the install, not the user.
	keyDeviceID = "agroscan:device_id"
)

// CredentialStore persists the token triple and cached profile fields as
// individual string keys. Multi-key writes go through a transaction pipeline
// so a reader never observes a partial credential set.
type CredentialStore struct {
	client *redis.Client
}

func New(cfg *config.RedisConfig) (*CredentialStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &CredentialStore{client: client}, nil
}

// NewWithClient wraps an existing Redis client, e.g. one backed by miniredis
// in tests.
func NewWithClient(client *redis.Client) *CredentialStore {
	return &CredentialStore{client: client}
}

func (s *CredentialStore) Save(ctx context.Context, creds *models.Credentials) error {
	if creds == nil || creds.AccessToken == "" || creds.RefreshToken == "" || creds.ExpiresAt.IsZero() {
		return fmt.Errorf("refusing to save partial credentials")
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, keyAccessToken, creds.AccessToken, 0)
		pipe.Set(ctx, keyRefreshToken, creds.RefreshToken, 0)
		pipe.Set(ctx, keyTokenExpiry, creds.ExpiresAt.Format(time.RFC3339), 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	return nil
}

func (s *CredentialStore) Load(ctx context.Context) (*models.Credentials, error) {
	vals, err := s.client.MGet(ctx, keyAccessToken, keyRefreshToken, keyTokenExpiry).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}

	fields := make([]string, len(vals))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok || str == "" {
			// Any missing field means the set is treated as absent.
			return nil, nil
		}
		fields[i] = str
	}

	expiresAt, err := time.Parse(time.RFC3339, fields[2])
	if err != nil {
		return nil, fmt.Errorf("failed to parse token expiry: %w", err)
	}

	return &models.Credentials{
		AccessToken:  fields[0],
		RefreshToken: fields[1],
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *CredentialStore) SaveProfile(ctx context.Context, profile *models.UserProfile) error {
	if profile == nil || profile.Email == "" {
		return fmt.Errorf("refusing to save profile without email")
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, keyUserEmail, profile.Email, 0)
		if profile.Name != "" {
			pipe.Set(ctx, keyUserName, profile.Name, 0)
		} else {
			pipe.Del(ctx, keyUserName)
		}
		if profile.Picture != "" {
			pipe.Set(ctx, keyUserPicture, profile.Picture, 0)
		} else {
			pipe.Del(ctx, keyUserPicture)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}

	return nil
}

func (s *CredentialStore) LoadProfile(ctx context.Context) (*models.UserProfile, error) {
	vals, err := s.client.MGet(ctx, keyUserEmail, keyUserName, keyUserPicture).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	email, ok := vals[0].(string)
	if !ok || email == "" {
		return nil, nil
	}

	profile := &models.UserProfile{Email: email}
	if name, ok := vals[1].(string); ok {
		profile.Name = name
	}
	if picture, ok := vals[2].(string); ok {
		profile.Picture = picture
	}

	return profile, nil
}

func (s *CredentialStore) Clear(ctx context.Context) error {
	err := s.client.Del(ctx,
		keyAccessToken, keyRefreshToken, keyTokenExpiry,
		keyUserEmail, keyUserName, keyUserPicture,
	).Err()
	if err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}

	return nil
}

// DeviceID returns the per-install identifier, generating and persisting one
// on first use.
func (s *CredentialStore) DeviceID(ctx context.Context) (string, error) {
	if err := s.client.SetNX(ctx, keyDeviceID, uuid.New().String(), 0).Err(); err != nil {
		return "", fmt.Errorf("failed to initialize device ID: %w", err)
	}

	id, err := s.client.Get(ctx, keyDeviceID).Result()
	if err != nil {
		return "", fmt.Errorf("failed to get device ID: %w", err)
	}

	return id, nil
}

func (s *CredentialStore) Close() error {
	return s.client.Close()
}
