package transaction

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/hitoshi/signman/internal/esign"
	"github.com/hitoshi/signman/internal/model"
)

func TestMergeFromRemote_KnownIDUpdatesStatusOnly(t *testing.T) {
	m := testMirror(&mockTxRepo{}, &mockVendorClient{})
	seedMirror(m, &model.Transaction{
		ID:     "t1",
		Name:   "ローカル名",
		Status: model.StatusSent,
		Signers: []model.Signer{
			{ID: "s1", Name: "ローカル署名者", Email: "local@example.com"},
		},
		Documents: []model.Document{{ID: "d1", Name: "local.pdf"}},
		History:   []model.HistoryEntry{{Action: model.ActionCreated}},
	})

	m.MergeFromRemote(context.Background(), []esign.Package{
		{
			ID:     "t1",
			Name:   "リモート名",
			Status: "COMPLETED",
			Roles:  []esign.Role{{ID: "remote-role", Email: "remote@example.com"}},
			Raw:    json.RawMessage(`{"id":"t1","status":"COMPLETED"}`),
		},
	})

	tx, err := m.GetByID(context.Background(), "t1", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tx.Status != "COMPLETED" {
		t.Errorf("Status = %q, want COMPLETED", tx.Status)
	}
	// ローカル所有フィールドはリフレッシュで上書きされない
	if tx.Name != "ローカル名" {
		t.Errorf("Name = %q, want local name preserved", tx.Name)
	}
	if len(tx.Signers) != 1 || tx.Signers[0].ID != "s1" {
		t.Errorf("Signers = %+v, want local signers preserved", tx.Signers)
	}
	if len(tx.Documents) != 1 || tx.Documents[0].ID != "d1" {
		t.Errorf("Documents = %+v, want local documents preserved", tx.Documents)
	}
	if len(tx.History) != 1 || tx.History[0].Action != model.ActionCreated {
		t.Errorf("History = %+v, want local history preserved", tx.History)
	}
	if string(tx.APIData) != `{"id":"t1","status":"COMPLETED"}` {
		t.Errorf("APIData = %s, want remote raw payload", tx.APIData)
	}
}

func TestMergeFromRemote_EmptyRemoteStatusKeepsLocal(t *testing.T) {
	m := testMirror(&mockTxRepo{}, &mockVendorClient{})
	seedMirror(m, &model.Transaction{ID: "t1", Status: model.StatusSent})

	m.MergeFromRemote(context.Background(), []esign.Package{{ID: "t1"}})

	tx, _ := m.GetByID(context.Background(), "t1", false)
	if tx.Status != model.StatusSent {
		t.Errorf("Status = %q, want unchanged SENT", tx.Status)
	}
}

func TestMergeFromRemote_TypeAsStringFallback(t *testing.T) {
	m := testMirror(&mockTxRepo{}, &mockVendorClient{})
	seedMirror(m, &model.Transaction{ID: "t1", Status: model.StatusSent})

	m.MergeFromRemote(context.Background(), []esign.Package{
		{ID: "t1", TypeAsString: "ARCHIVED"},
	})

	tx, _ := m.GetByID(context.Background(), "t1", false)
	if tx.Status != "ARCHIVED" {
		t.Errorf("Status = %q, want typeAsString fallback ARCHIVED", tx.Status)
	}
}

func TestMergeFromRemote_UnknownIDSynthesizesRecord(t *testing.T) {
	m := testMirror(&mockTxRepo{}, &mockVendorClient{})
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	m.MergeFromRemote(context.Background(), []esign.Package{
		{
			ID:     "remote-1",
			Name:   "リモート契約",
			Status: "SENT",
			Roles: []esign.Role{
				{ID: "r1", Name: "山田", Email: "yamada@example.com", Status: "PENDING"},
				{FirstName: "Taro", LastName: "Suzuki"},
			},
			Raw: json.RawMessage(`{"id":"remote-1"}`),
		},
	})

	tx, err := m.GetByID(context.Background(), "remote-1", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tx.Name != "リモート契約" || tx.Status != "SENT" {
		t.Errorf("synthesized record = %+v", tx)
	}
	if !tx.Created.Equal(now) || !tx.Updated.Equal(now) {
		t.Errorf("timestamps = (%v, %v), want merge time", tx.Created, tx.Updated)
	}
	if len(tx.Documents) != 0 {
		t.Errorf("Documents = %+v, want empty", tx.Documents)
	}
	if len(tx.History) != 1 || tx.History[0].Action != model.ActionDiscovered {
		t.Errorf("History = %+v, want single DISCOVERED entry", tx.History)
	}

	if len(tx.Signers) != 2 {
		t.Fatalf("Signers = %d, want 2", len(tx.Signers))
	}
	first := tx.Signers[0]
	if first.ID != "r1" || first.Name != "山田" || first.Email != "yamada@example.com" {
		t.Errorf("signer[0] = %+v", first)
	}
	second := tx.Signers[1]
	if second.Name != "Taro Suzuki" {
		t.Errorf("signer[1].Name = %q, want firstName+lastName", second.Name)
	}
	if second.Email != "unknown@example.com" {
		t.Errorf("signer[1].Email = %q, want placeholder", second.Email)
	}
	if second.Status != model.SignerStatusPending {
		t.Errorf("signer[1].Status = %q, want PENDING fallback", second.Status)
	}
	if second.ID == "" {
		t.Error("signer[1].ID must be synthesized")
	}
}

func TestMergeFromRemote_IsIdempotentByID(t *testing.T) {
	m := testMirror(&mockTxRepo{}, &mockVendorClient{})

	pkgs := []esign.Package{
		{ID: "t1", Name: "A", Status: "SENT"},
		{ID: "t2", Name: "B", Status: "CREATED"},
	}

	ctx := context.Background()
	m.MergeFromRemote(ctx, pkgs)
	m.MergeFromRemote(ctx, pkgs)
	m.MergeFromRemote(ctx, pkgs)

	txs := m.GetAll(ctx, false, ListOptions{})
	if len(txs) != 2 {
		t.Errorf("len = %d, want 2 (no duplicates on repeated merge)", len(txs))
	}
	// 再マージでDISCOVEREDが増えないこと
	for _, tx := range txs {
		if len(tx.History) != 1 {
			t.Errorf("tx %s history = %d entries, want 1", tx.ID, len(tx.History))
		}
	}
}

func TestMergeFromRemote_MissingPackageIDSynthesizesLocalID(t *testing.T) {
	m := testMirror(&mockTxRepo{}, &mockVendorClient{})
	m.newID = func() string { return "synth-id" }

	m.MergeFromRemote(context.Background(), []esign.Package{{Name: "IDなし"}})

	tx, err := m.GetByID(context.Background(), "synth-id", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tx.Name != "IDなし" {
		t.Errorf("Name = %q", tx.Name)
	}
}

func TestMergeFromRemote_SanitizesRemoteStrings(t *testing.T) {
	repo := &mockTxRepo{}
	m := testMirror(repo, &mockVendorClient{})
	// テスト用のpassthroughではなく実際の除去動作を模擬する
	m.sanitizer = stripTagsSanitizer{}

	m.MergeFromRemote(context.Background(), []esign.Package{
		{
			ID:    "t1",
			Name:  "<i>契約</i>",
			Roles: []esign.Role{{ID: "r1", Name: "<b>山田</b>"}},
		},
	})

	tx, _ := m.GetByID(context.Background(), "t1", false)
	if tx.Name != "契約" {
		t.Errorf("Name = %q, want tags stripped", tx.Name)
	}
	if tx.Signers[0].Name != "山田" {
		t.Errorf("signer Name = %q, want tags stripped", tx.Signers[0].Name)
	}
}

// stripTagsSanitizer は単純なタグ除去のテスト用実装。
type stripTagsSanitizer struct{}

func (stripTagsSanitizer) Sanitize(raw string) string {
	out := make([]rune, 0, len(raw))
	depth := 0
	for _, r := range raw {
		switch r {
		case '<':
			depth++
		case '>':
			if depth > 0 {
				depth--
			}
		default:
			if depth == 0 {
				out = append(out, r)
			}
		}
	}
	return string(out)
}
