package config

import (
	"context"
	"log"
	"os"
	"path/filepath"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

type Paths struct {
	DataDir         string
	SessionFile     string
	ProfilesFile    string
	CredentialsFile string
	PostsFile       string
	LikesFile       string
	MessagesFile    string
}

func DefaultPaths() Paths {
	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "/data"
		if _, err := os.Stat(dataDir); err != nil {
			dataDir = filepath.Join(".", "data")
		}
	}
	return Paths{
		DataDir:         dataDir,
		SessionFile:     filepath.Join(dataDir, "session.json"),
		ProfilesFile:    filepath.Join(dataDir, "profiles.json"),
		CredentialsFile: filepath.Join(dataDir, "credentials.json"),
		PostsFile:       filepath.Join(dataDir, "posts.json"),
		LikesFile:       filepath.Join(dataDir, "likes.json"),
		MessagesFile:    filepath.Join(dataDir, "messages.json"),
	}
}

func EnsureDir(dir string) { _ = os.MkdirAll(dir, 0o755) }

// Offline uses the in-memory store instead of Firebase (OFFLINE=1).
func Offline() bool { return os.Getenv("OFFLINE") == "1" }

// WebAPIKey is the Identity Toolkit browser key used for password sign-in.
func WebAPIKey() string { return os.Getenv("FIREBASE_WEB_API_KEY") }

// StorageBucket for uploaded post images, e.g. "myproject.appspot.com".
func StorageBucket() string {
	if b := os.Getenv("FIREBASE_STORAGE_BUCKET"); b != "" {
		return b
	}
	return os.Getenv("FIREBASE_PROJECT_ID") + ".appspot.com"
}

func projectID() string {
	proj := os.Getenv("FIREBASE_PROJECT_ID")
	if proj == "" {
		log.Fatal("FIREBASE_PROJECT_ID not set")
	}
	return proj
}

func clientOptions() []option.ClientOption {
	var opts []option.ClientOption
	if saJSON := os.Getenv("FIREBASE_SERVICE_ACCOUNT_JSON"); saJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(saJSON)))
	} else if cred := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); cred != "" {
		if _, err := os.Stat(cred); err != nil {
			log.Fatalf("GOOGLE_APPLICATION_CREDENTIALS %q not readable: %v", cred, err)
		}
		opts = append(opts, option.WithCredentialsFile(cred))
	}
	return opts
}

func NewApp(ctx context.Context) *firebase.App {
	app, err := firebase.NewApp(ctx, &firebase.Config{
		ProjectID:     projectID(),
		StorageBucket: StorageBucket(),
	}, clientOptions()...)
	if err != nil {
		log.Fatalf("firebase init: %v", err)
	}
	return app
}

// NewAuthClient returns the admin auth client, or nil when no service
// account credentials are configured (sign-out then skips token
// revocation).
func NewAuthClient(ctx context.Context, app *firebase.App) *auth.Client {
	if os.Getenv("FIREBASE_SERVICE_ACCOUNT_JSON") == "" &&
		os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
		return nil
	}
	client, err := app.Auth(ctx)
	if err != nil {
		log.Fatalf("firebase auth: %v", err)
	}
	return client
}

func NewFirestoreClient(ctx context.Context, app *firebase.App) *firestore.Client {
	client, err := app.Firestore(ctx)
	if err != nil {
		log.Fatalf("firestore init: %v", err)
	}
	return client
}

func NewBucket(ctx context.Context, app *firebase.App) *storage.BucketHandle {
	st, err := app.Storage(ctx)
	if err != nil {
		log.Fatalf("storage init: %v", err)
	}
	bucket, err := st.DefaultBucket()
	if err != nil {
		log.Fatalf("storage bucket: %v", err)
	}
	return bucket
}
