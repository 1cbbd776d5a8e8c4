// Package model はドメインモデルを定義する。
package model

import "time"

// Tag はPostから抽出されたトピックラベルを表す。
// 名前はグローバルに一意ではなく、異なるPost間での重複は正常。
// Postの削除時にCASCADEで削除される。
type Tag struct {
	ID         string
	PostID     string
	Name       string
	CreateDate time.Time
}
