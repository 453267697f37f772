package repository

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"portalpilot-go/domain/script"
	"portalpilot-go/domain/step"
)

func TestDefaultMongoDBConfig(t *testing.T) {
	config := DefaultMongoDBConfig()

	if config == nil {
		t.Fatal("DefaultMongoDBConfig returned nil")
	}

	if config.URI != "mongodb://localhost:27017" {
		t.Errorf("URI = %v, want mongodb://localhost:27017", config.URI)
	}

	if config.Database != "portalpilot" {
		t.Errorf("Database = %v, want portalpilot", config.Database)
	}

	if config.ConnectTimeout != 10*time.Second {
		t.Errorf("ConnectTimeout = %v, want 10s", config.ConnectTimeout)
	}

	if config.PingTimeout != 5*time.Second {
		t.Errorf("PingTimeout = %v, want 5s", config.PingTimeout)
	}
}

func TestTargetDocument_Conversion(t *testing.T) {
	doc := &targetDocument{
		ID:                 "viaverde_rpa",
		DisplayName:        "Via Verde",
		InitialURL:         "https://www.viaverde.pt/empresas",
		CredentialBindings: []string{"partner-1"},
	}

	tgt := documentToTarget(doc)

	if tgt.ID != "viaverde_rpa" {
		t.Errorf("ID = %v, want viaverde_rpa", tgt.ID)
	}
	if tgt.InitialURL != doc.InitialURL {
		t.Errorf("InitialURL = %v, want %v", tgt.InitialURL, doc.InitialURL)
	}
	if len(tgt.CredentialBindings) != 1 || tgt.CredentialBindings[0] != "partner-1" {
		t.Errorf("CredentialBindings = %v", tgt.CredentialBindings)
	}

	back := targetToDocument(tgt)
	if back.ID != doc.ID || back.DisplayName != doc.DisplayName {
		t.Errorf("targetToDocument() = %+v", back)
	}
}

func TestScriptDocument_BSONFieldNames(t *testing.T) {
	s := script.New("viaverde_rpa", script.KindLogin, []step.Step{
		{Order: 1, ActionType: step.ActionInsertCredential, Parameters: step.Parameters{Field: "password"}},
	}, "op-1")

	raw, err := bson.Marshal(scriptToDocument(s))
	if err != nil {
		t.Fatalf("bson.Marshal() = %v", err)
	}

	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		t.Fatalf("bson.Unmarshal() = %v", err)
	}

	for _, key := range []string{"target_id", "kind", "steps", "saved_by", "saved_at"} {
		if _, ok := m[key]; !ok {
			t.Errorf("missing field %q in %v", key, m)
		}
	}

	var doc scriptDocument
	if err := bson.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("bson.Unmarshal(doc) = %v", err)
	}
	got := documentToScript(&doc)
	if got.Kind != script.KindLogin || len(got.Steps) != 1 || got.Steps[0].Parameters.Field != "password" {
		t.Errorf("documentToScript() = %+v", got)
	}
	if got.Steps[0].Parameters.Text != "" {
		t.Error("credential step must not carry text")
	}
}

func TestDocumentToDraft(t *testing.T) {
	doc := &draftDocument{
		OperatorID: "op-1",
		TargetID:   "t1",
		Steps:      []step.Step{{Order: 1, ActionType: step.ActionWait, Parameters: step.Parameters{Seconds: 1}}},
	}

	d := documentToDraft(doc)
	if d.Key.OperatorID != "op-1" || d.Key.TargetID != "t1" {
		t.Errorf("Key = %+v", d.Key)
	}
	doc.Steps[0].Order = 9
	if d.Steps[0].Order != 1 {
		t.Error("documentToDraft must copy steps")
	}
}

