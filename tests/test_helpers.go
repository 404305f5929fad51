package tests

import (
	"context"
	"fmt"
	"log"
	"testing"

	"firebase.google.com/go/v4/auth"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SetupTestDB starts a throwaway MongoDB container for the history store and
// returns the database handle plus a teardown func.
func SetupTestDB(t *testing.T) (*mongo.Database, func()) {
	ctx := context.Background()

	container, err := mongodb.Run(ctx, "mongo:latest")
	if err != nil {
		t.Fatalf("start mongo container: %s", err)
	}

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("container connection string: %s", err)
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		t.Fatalf("connect to mongo: %v", err)
	}

	return client.Database("ironlog_test"), func() {
		if err := client.Disconnect(ctx); err != nil {
			log.Printf("disconnect mongo: %v", err)
		}
		if err := container.Terminate(ctx); err != nil {
			log.Printf("terminate mongo container: %v", err)
		}
	}
}

// MockAuthClient stands in for the Firebase auth client during tests. Tokens
// registered with AddMockUser verify; everything else is rejected.
type MockAuthClient struct {
	ValidTokens map[string]*auth.Token
}

func NewMockAuthClient() *MockAuthClient {
	return &MockAuthClient{
		ValidTokens: make(map[string]*auth.Token),
	}
}

func (m *MockAuthClient) VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error) {
	if token, ok := m.ValidTokens[idToken]; ok {
		return token, nil
	}
	return nil, fmt.Errorf("invalid mock token")
}

// AddMockUser registers tokenString as a valid Firebase ID token for uid.
func (m *MockAuthClient) AddMockUser(tokenString string, uid string, email string) {
	m.ValidTokens[tokenString] = &auth.Token{
		UID: uid,
		Claims: map[string]interface{}{
			"email": email,
		},
	}
}
