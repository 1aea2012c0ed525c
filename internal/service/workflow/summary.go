package workflow

import (
	"regexp"
	"strings"

	"github.com/vladislavdragonenkov/lms/internal/domain"
)

var deliveredWordRe = regexp.MustCompile(`(?i)\bdelivered\b`)

// SummarizeReplies сводит ответы групповой беседы в одну строку статусов.
//
// Правила:
//   - ответы с "idle" (без учёта регистра) отбрасываются;
//   - ответ с целым словом "delivered" становится отдельным сегментом
//     "<sender>: <text>" и взводит финальный флаг;
//   - остальные группируются по отправителю в порядке первого появления;
//     внутри группы подряд идущие одинаковые тексты схлопываются в один;
//   - сводка: "Order status updates: " + сегменты через " | ", затем
//     delivered-сегменты в порядке прибытия; суффикс " (final)" при
//     взведённом флаге.
//
// Детерминированна относительно порядка входного списка. Ошибочные ответы
// транспорта пропускаются молча.
func SummarizeReplies(replies []domain.Reply) string {
	var firstSeen []string
	statuses := make(map[string][]string)
	var deliveredSegments []string
	deliveredSeen := false

	for _, reply := range replies {
		if reply.Failed() {
			continue
		}
		text := strings.TrimSpace(reply.Text)
		name := reply.Sender
		if name == "" {
			name = "Unknown"
		}
		if text == "" || strings.Contains(strings.ToLower(text), "idle") {
			continue
		}

		if deliveredWordRe.MatchString(text) {
			deliveredSeen = true
			deliveredSegments = append(deliveredSegments, name+": "+text)
			continue
		}

		group, known := statuses[name]
		if !known {
			firstSeen = append(firstSeen, name)
		}
		// Схлопываются только непосредственные повторы одного текста.
		if len(group) == 0 || group[len(group)-1] != text {
			statuses[name] = append(group, text)
		}
	}

	if len(firstSeen) == 0 && len(deliveredSegments) == 0 {
		return msgNoUpdates
	}

	var segments []string
	for _, name := range firstSeen {
		if len(statuses[name]) > 0 {
			segments = append(segments, name+": "+strings.Join(statuses[name], ", "))
		}
	}
	segments = append(segments, deliveredSegments...)

	summary := "Order status updates: " + strings.Join(segments, " | ")
	if deliveredSeen {
		summary += " (final)"
	}
	return summary
}
