// Package artifact はPost IDをキーとするコンテンツブロブの保存を提供する。
// 未処理ペイロード（raw）と要約（summaries）の2つのストアとして使用され、
// それぞれ1 Postにつき1ブロブを保持する。要約ブロブの存在はSummarizeステージの
// 再開チェックポイントとして重複したモデル呼び出しを防ぐ役割も持つ。
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Store はディレクトリ配下にPost IDをキーとするブロブを保存する。
type Store struct {
	dir string
	ext string
}

// NewStore はStoreを生成し、保存先ディレクトリを作成する。
// extはブロブのファイル拡張子（例: ".json", ".md"）。
func NewStore(dir, ext string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("アーティファクトディレクトリの作成に失敗しました: %w", err)
	}
	return &Store{dir: dir, ext: ext}, nil
}

// Path は指定IDのブロブの保存先パスを返す。
func (s *Store) Path(id string) string {
	return filepath.Join(s.dir, id+s.ext)
}

// Write は指定IDのブロブを書き込む。既存ブロブは上書きされる（冪等）。
func (s *Store) Write(id string, content []byte) error {
	if err := os.WriteFile(s.Path(id), content, 0o644); err != nil {
		return fmt.Errorf("アーティファクトの書き込みに失敗しました: %w", err)
	}
	return nil
}

// Read は指定IDのブロブを読み込む。
func (s *Store) Read(id string) ([]byte, error) {
	data, err := os.ReadFile(s.Path(id))
	if err != nil {
		return nil, fmt.Errorf("アーティファクトの読み込みに失敗しました: %w", err)
	}
	return data, nil
}

// Exists は指定IDのブロブが存在するかを返す。
func (s *Store) Exists(id string) bool {
	_, err := os.Stat(s.Path(id))
	return err == nil
}

// Delete は指定IDのブロブを削除する。
// 既に存在しない場合はos.ErrNotExistをラップしたエラーを返す。
func (s *Store) Delete(id string) error {
	if err := os.Remove(s.Path(id)); err != nil {
		return fmt.Errorf("アーティファクトの削除に失敗しました: %w", err)
	}
	return nil
}

// List はストア内の全ブロブのIDをソート済みで返す。
// Summarizeステージがディスク上の全rawペイロードを走査するために使用する。
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("アーティファクト一覧の取得に失敗しました: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, s.ext) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, s.ext))
	}
	sort.Strings(ids)
	return ids, nil
}
