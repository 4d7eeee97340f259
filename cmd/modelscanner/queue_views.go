package main

import (
	"strconv"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"modelscanner/internal/queue"
)

var statusTitle = cases.Title(language.English)

func statusLabel(status queue.Status) string {
	return statusTitle.String(string(status))
}

func buildQueueStatusRows(health queue.HealthSummary) [][]string {
	counts := map[queue.Status]int{
		queue.StatusPending:    health.Pending,
		queue.StatusProcessing: health.Processing,
		queue.StatusCompleted:  health.Completed,
		queue.StatusFailed:     health.Failed,
	}
	rows := make([][]string, 0, len(counts)+1)
	for _, status := range queue.AllStatuses() {
		if counts[status] == 0 {
			continue
		}
		rows = append(rows, []string{statusLabel(status), strconv.Itoa(counts[status])})
	}
	rows = append(rows, []string{"Total", strconv.Itoa(health.Total)})
	return rows
}

func buildQueueListRows(jobs []*queue.Job) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, []string{
			strconv.FormatInt(job.ID, 10),
			string(job.Kind),
			statusLabel(job.Status),
			job.Priority.String(),
			strconv.Itoa(job.Attempts),
			job.CreatedAt.Local().Format(time.DateTime),
			job.Target(),
		})
	}
	return rows
}
