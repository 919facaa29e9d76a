// Command catalyst はゲームライブラリクライアントの認証・セッションAPIサーバー。
//
// 使い方:
//
//	catalyst [serve|migrate|sweep|healthcheck]
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"

	"github.com/hitoshi/catalyst/internal/app"
)

func main() {
	// .envは任意。既に設定されている環境変数は上書きしない
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		os.Exit(1)
	}

	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "catalyst: %v\n", err)
		os.Exit(1)
	}
}
