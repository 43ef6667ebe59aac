// Package main точка входа CLI нагрузочных тестов.
package main

import (
	"errors"
	"fmt"
	"os"

	"virkum-respond/internal/domain"
)

func main() {
	if err := newRootCmd(newCLIEnv()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode возвращает 2 для ошибок валидации параметров и 1 для остальных.
func exitCode(err error) int {
	if errors.Is(err, domain.ErrValidation) {
		return 2
	}
	return 1
}
