package app

import "testing"

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		want     Command
		wantRest int
	}{
		{name: "引数なしはserve", args: nil, want: CommandServe},
		{name: "scrape", args: []string{"scrape"}, want: CommandScrape},
		{name: "summarize", args: []string{"summarize"}, want: CommandSummarize},
		{name: "tag", args: []string{"tag"}, want: CommandTag},
		{name: "costs", args: []string{"costs"}, want: CommandCosts},
		{name: "purgeは残り引数を返す", args: []string{"purge", "some-uuid"}, want: CommandPurge, wantRest: 1},
		{name: "purge-all", args: []string{"purge-all"}, want: CommandPurgeAll},
		{name: "serve", args: []string{"serve"}, want: CommandServe},
		{name: "migrate", args: []string{"migrate"}, want: CommandMigrate},
		{name: "healthcheck", args: []string{"healthcheck"}, want: CommandHealthcheck},
		{name: "未知のコマンドはserve", args: []string{"unknown"}, want: CommandServe, wantRest: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, rest := ParseCommand(tt.args)
			if got != tt.want {
				t.Errorf("ParseCommand(%v) = %q, want %q", tt.args, got, tt.want)
			}
			if len(rest) != tt.wantRest {
				t.Errorf("len(rest) = %d, want %d", len(rest), tt.wantRest)
			}
		})
	}
}
