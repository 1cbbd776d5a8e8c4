package llm

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/feeddigest/internal/model"
	"github.com/hitoshi/feeddigest/internal/repository"
)

// ErrMalformedChunk はストリームチャンクのフレーミングが不正な場合のエラー。
// トランスポート障害とは区別して呼び出し元へ伝播する。
var ErrMalformedChunk = errors.New("malformed stream chunk")

// Invoker はモデル呼び出しのインターフェース。
// SummarizeステージとTagステージから利用し、テスト時にモックへ差し替える。
type Invoker interface {
	// Invoke はモデルを呼び出し、ストリームを最後まで読み切った全文と
	// トークン使用量を返す。
	Invoke(ctx context.Context, systemPrompt, userQuery string, temperature float64, maxTokens int) (string, model.Usage, error)

	// ModelID は呼び出し対象のモデルIDを返す。
	ModelID() string
}

// Gateway はストリーミング型のモデル呼び出しAPIをラップする。
// ベンダーごとのリクエスト/レスポンス形式の差異はvendorCodecが吸収し、
// 成功した呼び出しごとに台帳へちょうど1件のLlmCall行を追記する。
// コーデックの選択はモデルIDのプレフィックスから構築時に1回だけ行う。
type Gateway struct {
	client   *http.Client
	endpoint string
	modelID  string
	codec    vendorCodec
	callRepo repository.LlmCallRepository
	prices   PriceTable
	logger   *slog.Logger
}

// NewGateway はGatewayの新しいインスタンスを生成する。
// endpointはモデル呼び出しAPIのベースURL。モデルIDが未知のベンダー
// ファミリーに属する場合はエラーを返す。
func NewGateway(
	client *http.Client,
	endpoint string,
	modelID string,
	callRepo repository.LlmCallRepository,
	prices PriceTable,
	logger *slog.Logger,
) (*Gateway, error) {
	codec, err := codecForModel(modelID)
	if err != nil {
		return nil, err
	}

	return &Gateway{
		client:   client,
		endpoint: strings.TrimRight(endpoint, "/"),
		modelID:  modelID,
		codec:    codec,
		callRepo: callRepo,
		prices:   prices,
		logger:   logger,
	}, nil
}

// ModelID は呼び出し対象のモデルIDを返す。
func (g *Gateway) ModelID() string {
	return g.modelID
}

// Invoke はモデルを呼び出し、ストリーミングレスポンスを最後まで読み切る。
// テキスト断片は全チャンクにわたって連結され、終端の使用量メトリクスは
// 最後のテキスト断片と同じチャンクまたはその後に届いても取りこぼさない。
// メトリクスが届かないまま終端した場合、使用量はゼロとして扱い警告ログを
// 出す（呼び出し自体は成功として台帳に記録される）。
func (g *Gateway) Invoke(ctx context.Context, systemPrompt, userQuery string, temperature float64, maxTokens int) (string, model.Usage, error) {
	body, err := g.codec.BuildRequest(systemPrompt, userQuery, temperature, maxTokens)
	if err != nil {
		return "", model.Usage{}, err
	}

	invokeURL := fmt.Sprintf("%s/model/%s/invoke-with-response-stream",
		g.endpoint, url.PathEscape(g.modelID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, invokeURL, bytes.NewReader(body))
	if err != nil {
		return "", model.Usage{}, fmt.Errorf("リクエスト作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return "", model.Usage{}, fmt.Errorf("モデル呼び出しのHTTPリクエストに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", model.Usage{}, fmt.Errorf("モデル呼び出しが失敗しました: HTTPステータス %d: %s",
			resp.StatusCode, string(respBody))
	}

	fullText, usage, err := g.consumeStream(resp.Body)
	if err != nil {
		return "", model.Usage{}, err
	}

	duration := time.Since(start)

	// 成功した呼び出しごとにちょうど1件の台帳行を追記する
	call := &model.LlmCall{
		ID:           uuid.New().String(),
		CreateDate:   time.Now().UTC(),
		ModelID:      g.modelID,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
	}
	if err := g.callRepo.Create(ctx, call); err != nil {
		return "", model.Usage{}, fmt.Errorf("LLM呼び出し記録の追記に失敗しました: %w", err)
	}

	attrs := []any{
		slog.String("model_id", g.modelID),
		slog.Int("input_tokens", usage.InputTokens),
		slog.Int("output_tokens", usage.OutputTokens),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	}
	if cost, costErr := g.prices.Cost(g.modelID, usage.InputTokens, usage.OutputTokens); costErr == nil {
		attrs = append(attrs, slog.Float64("cost_usd", cost))
	}
	g.logger.Info("モデル呼び出しが完了しました", attrs...)

	return fullText, usage, nil
}

// consumeStream はレスポンスボディのチャンク列を最後まで読み切り、
// 連結した全文と終端の使用量メトリクスを返す。ストリームは遅延評価・
// 有限・再開不可であり、1回のパスで全てを取り出す必要がある。
func (g *Gateway) consumeStream(body io.Reader) (string, model.Usage, error) {
	var fullText strings.Builder
	var usage model.Usage
	usageSeen := false

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		text, chunkUsage, err := g.codec.ParseChunk(line)
		if err != nil {
			return "", model.Usage{}, err
		}
		if text != "" {
			fullText.WriteString(text)
		}
		if chunkUsage != nil {
			usage = *chunkUsage
			usageSeen = true
		}
	}
	if err := scanner.Err(); err != nil {
		return "", model.Usage{}, fmt.Errorf("ストリームの読み取りに失敗しました: %w", err)
	}

	if !usageSeen {
		// 使用量メトリクス欠落はゼロとして扱う。コストが過少報告されるため
		// 警告として可視化する。
		g.logger.Warn("ストリーム終端の使用量メトリクスが届きませんでした",
			slog.String("model_id", g.modelID),
		)
	}

	return fullText.String(), usage, nil
}
