package notification

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/model"
)

var weekdayShort = [...]string{"Вс", "Пн", "Вт", "Ср", "Чт", "Пт", "Сб"}

// Render текст уведомления для Telegram (HTML)
func Render(n model.Notification) string {
	p := n.Payload
	when := formatInterval(p[KeyStart], p[KeyEnd])
	course := p[KeyCourse]
	who := p[KeyCounterparty]

	var b strings.Builder
	switch n.Event {
	case model.EventSessionRequested:
		fmt.Fprintf(&b, "📩 Новый запрос на занятие\n\n<b>%s</b>\n🕐 %s\n👤 %s", course, when, who)
	case model.EventSessionAccepted:
		fmt.Fprintf(&b, "✅ Занятие подтверждено\n\n<b>%s</b>\n🕐 %s\n👤 %s", course, when, who)
		if price := formatPrice(p[KeyPrice], p[KeyCurrency]); price != "" {
			fmt.Fprintf(&b, "\n💳 Оплачено: %s", price)
		}
	case model.EventSessionRefused:
		fmt.Fprintf(&b, "❌ Запрос отклонён\n\n<b>%s</b>\n🕐 %s", course, when)
	case model.EventSessionCountered:
		fmt.Fprintf(&b, "🔄 Учитель предложил другое время\n\n<b>%s</b>\nВы просили: %s\n\nВарианты:", course, when)
		for i, alt := range splitAlternatives(p[KeyAlternatives]) {
			fmt.Fprintf(&b, "\n%d. %s", i+1, alt)
		}
	case model.EventSessionCancelled:
		fmt.Fprintf(&b, "🚫 Занятие отменено\n\n<b>%s</b>\n🕐 %s", course, when)
		if reason := p[KeyReason]; reason != "" {
			fmt.Fprintf(&b, "\nПричина: %s", reason)
		}
	case model.EventSessionCompleted:
		fmt.Fprintf(&b, "🎓 Занятие завершено\n\n<b>%s</b>\n🕐 %s", course, when)
	default:
		fmt.Fprintf(&b, "ℹ️ %s", n.Event)
	}

	return b.String()
}

// FormatAlternatives значение для KeyAlternatives
func FormatAlternatives(items []model.Interval) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		parts = append(parts, it.Start.Format(time.RFC3339)+"/"+it.End.Format(time.RFC3339))
	}
	return strings.Join(parts, ";")
}

func splitAlternatives(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ";") {
		start, end, _ := strings.Cut(part, "/")
		out = append(out, formatInterval(start, end))
	}
	return out
}

// formatInterval "Пн 19.10.2026 09:00-10:00"
func formatInterval(startRaw, endRaw string) string {
	start, err := time.Parse(time.RFC3339, startRaw)
	if err != nil {
		return startRaw
	}
	res := fmt.Sprintf("%s %s", weekdayShort[start.Weekday()], start.Format("02.01.2006 15:04"))

	if end, err := time.Parse(time.RFC3339, endRaw); err == nil {
		res += "-" + end.Format("15:04")
	}
	return res
}

// formatPrice сумма в минимальных единицах, копейки опускаются если равны 0
func formatPrice(raw, currency string) string {
	amount, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || amount <= 0 {
		return ""
	}

	symbol := strings.ToUpper(currency)
	switch strings.ToLower(currency) {
	case "rub", "":
		symbol = "₽"
	case "usd":
		symbol = "$"
	case "eur":
		symbol = "€"
	}

	if amount%100 == 0 {
		return fmt.Sprintf("%d %s", amount/100, symbol)
	}
	return fmt.Sprintf("%.2f %s", float64(amount)/100, symbol)
}
