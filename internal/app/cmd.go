package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandScrape はフィード取り込みステージを実行することを示す。
	CommandScrape Command = "scrape"
	// CommandSummarize は要約ステージを実行することを示す。
	CommandSummarize Command = "summarize"
	// CommandTag はタグ付けステージを実行することを示す。
	CommandTag Command = "tag"
	// CommandCosts はコスト内訳の表示を実行することを示す。
	CommandCosts Command = "costs"
	// CommandPurge は指定UUIDのPostの削除を実行することを示す。
	CommandPurge Command = "purge"
	// CommandPurgeAll は全Postと台帳の削除を実行することを示す。
	CommandPurgeAll Command = "purge-all"
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドと残りの引数を解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) (Command, []string) {
	if len(args) == 0 {
		return CommandServe, nil
	}

	switch args[0] {
	case "scrape":
		return CommandScrape, args[1:]
	case "summarize":
		return CommandSummarize, args[1:]
	case "tag":
		return CommandTag, args[1:]
	case "costs":
		return CommandCosts, args[1:]
	case "purge":
		return CommandPurge, args[1:]
	case "purge-all":
		return CommandPurgeAll, args[1:]
	case "serve":
		return CommandServe, args[1:]
	case "migrate":
		return CommandMigrate, args[1:]
	case "healthcheck":
		return CommandHealthcheck, args[1:]
	default:
		return CommandServe, args
	}
}
