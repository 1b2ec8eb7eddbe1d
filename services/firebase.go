package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ruuvigate/models"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// refreshableToken is a credential source whose cached token can be dropped
type refreshableToken interface {
	oauth2.TokenSource
	Invalidate()
}

// FirestoreSink uploads device documents to a Firestore collection,
// authenticating with the self-signed credential issuer
type FirestoreSink struct {
	client     *firestore.Client
	collection string
	issuer     refreshableToken
	write      func(ctx context.Context, key string, doc *models.DeviceDocument) error
	logger     *zap.Logger
}

// NewFirestoreSink initializes the Firebase app and its Firestore client
func NewFirestoreSink(ctx context.Context, projectID, collection string, issuer *CredentialIssuer, logger *zap.Logger) (*FirestoreSink, error) {
	// Fail early rather than inside the first RPC
	if _, err := issuer.Token(); err != nil {
		return nil, fmt.Errorf("error issuing firestore credential: %w", err)
	}

	conf := &firebase.Config{ProjectID: projectID}
	app, err := firebase.NewApp(ctx, conf, option.WithTokenSource(issuer))
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting firestore client: %w", err)
	}

	logger.Info("Firestore client initialized",
		zap.String("project_id", projectID),
		zap.String("collection", collection))

	fs := &FirestoreSink{
		client:     client,
		collection: collection,
		issuer:     issuer,
		logger:     logger,
	}
	fs.write = fs.set
	return fs, nil
}

// Upload writes doc under key; an empty key lets Firestore assign one.
// An authentication rejection re-signs the credential and retries once.
func (fs *FirestoreSink) Upload(ctx context.Context, key string, doc *models.DeviceDocument) error {
	err := fs.write(ctx, key, doc)
	if status.Code(err) == codes.Unauthenticated {
		fs.logger.Warn("Firestore rejected credential, re-issuing", zap.String("key", key))
		fs.issuer.Invalidate()
		err = fs.write(ctx, key, doc)
	}
	if err != nil {
		if code := status.Code(err); code == codes.PermissionDenied || code == codes.InvalidArgument {
			return Permanent(fmt.Errorf("firestore rejected %s: %w", key, err))
		}
		return fmt.Errorf("error writing %s to firestore: %w", key, err)
	}
	return nil
}

func (fs *FirestoreSink) set(ctx context.Context, key string, doc *models.DeviceDocument) error {
	coll := fs.client.Collection(fs.collection)
	ref := coll.NewDoc()
	if key != "" {
		ref = coll.Doc(key)
	}
	_, err := ref.Set(ctx, documentFields(doc))
	return err
}

// documentFields is the remote schema of a device document
func documentFields(doc *models.DeviceDocument) map[string]interface{} {
	readings := make([]interface{}, len(doc.Readings))
	for i, r := range doc.Readings {
		readings[i] = map[string]interface{}{
			"temperature": r.Temperature,
			"humidity":    r.Humidity,
			"timestamp":   r.Timestamp,
		}
	}
	return map[string]interface{}{
		"tag_id":          doc.DeviceID,
		"date":            doc.Day,
		"battery_voltage": doc.BatteryMV,
		"battery_level":   doc.BatteryLevel,
		"measurements":    readings,
		"uploaded_at":     firestore.ServerTimestamp,
	}
}

// Close closes the Firestore connection
func (fs *FirestoreSink) Close() error {
	fs.logger.Info("Closing Firestore client")
	return fs.client.Close()
}

// GatewayStatus is the record mirrored to the Realtime Database after a flush
type GatewayStatus struct {
	GatewayID  string                 `json:"gateway_id"`
	UpdatedAt  string                 `json:"updated_at"`
	Checkpoint models.Checkpoint      `json:"checkpoint"`
	LastFlush  *models.FlushReport    `json:"last_flush,omitempty"`
	Battery    models.BatterySnapshot `json:"battery"`
}

// StatusMirror publishes the gateway status to the Firebase Realtime Database
type StatusMirror struct {
	client    *db.Client
	gatewayID string
	logger    *zap.Logger
}

// NewStatusMirror connects to the Realtime Database with the service-account key
func NewStatusMirror(ctx context.Context, dbURL, serviceAccountJSON, gatewayID string, logger *zap.Logger) (*StatusMirror, error) {
	if dbURL == "" {
		return nil, errors.New("realtime database url is empty")
	}
	conf := &firebase.Config{DatabaseURL: dbURL}
	app, err := firebase.NewApp(ctx, conf, option.WithCredentialsJSON([]byte(serviceAccountJSON)))
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	client, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting database client: %w", err)
	}
	return &StatusMirror{client: client, gatewayID: gatewayID, logger: logger}, nil
}

// StatusPath is the database location of a gateway's mirrored status
func StatusPath(gatewayID string) string {
	return "gateways/" + gatewayID + "/status"
}

// Publish overwrites gateways/<id>/status
func (sm *StatusMirror) Publish(ctx context.Context, st GatewayStatus) error {
	st.GatewayID = sm.gatewayID
	if st.UpdatedAt == "" {
		st.UpdatedAt = time.Now().Format(time.RFC3339)
	}
	ref := sm.client.NewRef(StatusPath(sm.gatewayID))
	if err := ref.Set(ctx, st); err != nil {
		return fmt.Errorf("error publishing gateway status: %w", err)
	}
	sm.logger.Info("Gateway status mirrored", zap.String("path", ref.Path))
	return nil
}
