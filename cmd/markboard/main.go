// Package main - точка входа markboard.
//
// markboard скачивает сводную таблицу результатов ejudge ЛКШ, считает
// итоговую оценку каждого студента по сетке "темы × уровни" и отдаёт
// результаты:
// - ранжированным CSV (results.csv)
// - массовым JSON и персональным JSON по ejudge ID
// - через HTTP API с периодической синхронизацией в фоне
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
