package llm

import (
	"fmt"
	"strings"

	"github.com/hitoshi/feeddigest/internal/model"
)

// vendorCodec はベンダーファミリーごとのリクエスト/レスポンス形式の差異を
// 吸収するインターフェース。新しいベンダーはこのインターフェースの実装を
// 追加することで対応し、呼び出し側の分岐は増やさない。
type vendorCodec interface {
	// BuildRequest はモデル呼び出しのリクエストボディを構築する。
	BuildRequest(systemPrompt, userQuery string, temperature float64, maxTokens int) ([]byte, error)

	// ParseChunk はストリームの1チャンクを解析する。
	// テキスト断片を含むチャンクはtextに値が入る。
	// 終端の使用量メトリクスチャンクはusageに値が入る。
	// どちらでもないチャンク（開始イベント等）は両方ゼロ値で返す。
	ParseChunk(chunk []byte) (text string, usage *model.Usage, err error)
}

// codecForModel はモデルIDのプレフィックスからベンダーコーデックを選択する。
// 選択は呼び出しごとではなくGateway構築時に1回だけ行われる。
func codecForModel(modelID string) (vendorCodec, error) {
	switch {
	case strings.HasPrefix(modelID, "anthropic."):
		return &anthropicCodec{}, nil
	case strings.HasPrefix(modelID, "us.amazon.nova") || strings.HasPrefix(modelID, "amazon.nova"):
		return &novaCodec{}, nil
	default:
		return nil, fmt.Errorf("サポートされていないモデルIDです: %s", modelID)
	}
}
