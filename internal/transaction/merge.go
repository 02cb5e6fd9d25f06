package transaction

import (
	"context"
	"log/slog"

	"github.com/hitoshi/signman/internal/esign"
	"github.com/hitoshi/signman/internal/model"
)

// placeholderEmail はベンダーのロールにemailが無い場合のプレースホルダー。
const placeholderEmail = "unknown@example.com"

// MergeFromRemote はリモートパッケージをローカル一覧にマージして永続化する。
// テストおよびリフレッシュ経路から使用される。ID単位で冪等であり、
// 同じパッケージを再度マージしても重複レコードは作られない。
func (m *Mirror) MergeFromRemote(ctx context.Context, pkgs []esign.Package) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mergeFromRemoteLocked(pkgs)
	m.persistLocked(ctx)
}

// mergeFromRemoteLocked はリモートパッケージをID単位でupsertする。
// 呼び出し側でロックを保持すること。
//
// 既知のIDの場合はstatus（statusを優先、無ければtypeAsString）と
// updated、生ペイロード（apiData）のみを更新する。署名者・ドキュメント・
// 履歴はローカル所有フィールドであり、リフレッシュでは変更しない。
//
// 未知のIDの場合は新規ローカルレコードを合成する: 署名者はベンダーの
// rolesから導出し、ドキュメントは空、履歴はDISCOVEREDエントリ1件で初期化する。
func (m *Mirror) mergeFromRemoteLocked(pkgs []esign.Package) {
	now := m.now()
	merged := 0
	discovered := 0

	for i := range pkgs {
		pkg := &pkgs[i]

		id := pkg.ID
		if id == "" {
			// ベンダーがIDを返さない場合はローカルIDを合成する
			id = m.newID()
		}

		if existing := m.findLocked(id); existing != nil {
			if status := pkg.StatusOrType(); status != "" {
				existing.Status = status
			}
			existing.Updated = now
			existing.APIData = pkg.Raw
			merged++
			continue
		}

		tx := &model.Transaction{
			ID:        id,
			Name:      m.sanitizer.Sanitize(pkg.Name),
			Status:    pkg.StatusOrType(),
			Created:   now,
			Updated:   now,
			Signers:   m.signersFromRoles(pkg.Roles),
			Documents: []model.Document{},
			APIData:   pkg.Raw,
		}
		tx.AppendHistory(model.ActionDiscovered, "リフレッシュ時にリモートで検出されました", now)
		m.txs = append(m.txs, tx)
		discovered++
	}

	m.logger.Info("リモートパッケージのマージ完了",
		slog.Int("updated", merged),
		slog.Int("discovered", discovered),
	)
}

// signersFromRoles はベンダーのroles配列からローカルの署名者一覧を導出する。
// rolesが無い場合は空の一覧を返す。表示名はname、無ければfirstName+lastName、
// どちらも無ければ "Unknown"。emailが無い場合はプレースホルダー、
// ステータスが無い場合はPENDINGにフォールバックする。
// ベンダーがロールIDを返さない場合はランダムIDを合成する。
func (m *Mirror) signersFromRoles(roles []esign.Role) []model.Signer {
	signers := make([]model.Signer, 0, len(roles))
	for i := range roles {
		role := &roles[i]

		id := role.ID
		if id == "" {
			id = m.newID()
		}
		email := role.Email
		if email == "" {
			email = placeholderEmail
		}
		status := role.Status
		if status == "" {
			status = model.SignerStatusPending
		}

		signers = append(signers, model.Signer{
			ID:     id,
			Name:   m.sanitizer.Sanitize(role.DisplayName()),
			Email:  email,
			Status: status,
		})
	}
	return signers
}
