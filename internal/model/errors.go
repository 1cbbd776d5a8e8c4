// Package model はドメインモデルを定義する。
package model

import "errors"

// ErrUnknownModel は価格表に存在しないモデルIDのコスト計算を要求した場合のエラー。
// コストを暗黙にゼロとして返すことは許されないため、必ず呼び出し元へ伝播する。
var ErrUnknownModel = errors.New("unknown model id in price table")

// ErrPostNotFound は指定された識別子のPostが存在しない場合のエラー。
var ErrPostNotFound = errors.New("post not found")
