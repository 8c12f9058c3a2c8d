package bot

import (
	"fmt"
	"strings"

	"github.com/t1mm4te/MusicCircles/model"
)

// Menu and prompt rendering. Everything here is a pure function of session
// state: no network, no filesystem, same input same output.

const (
	greetingText     = "Привет, я бот, который создает музыкальные кружочки.\nНапиши мне название песни."
	newSearchText    = "Введите название песни для поиска:"
	chooseOptionText = "Выберите опцию:"
	searchFailText   = "Произошла ошибка. Попробуйте еще раз позже."
	notFoundText     = "Ничего не получилось найти. Попробуйте написать еще раз."
	selectFailText   = "Произошла ошибка. Попробуйте написать название песни заново."
	fromStartText    = "✅Будем отсчитывать сначала.\nВыберите опцию:"
	creatingText     = "Хорошо, создаю кружок...\n⚙️"
	createFailText   = "Ошибка, при создании кружка 😢"

	customTimeText = "Хорошо, задай время или в формате мм:сс или сс для " +
		"обозначения начала, или мм:сс мм:сс или сс сс для " +
		"обозначения интервалов (через пробел)."

	uploadSavedText   = "Файл загружен!"
	uploadBadTypeText = "Неподдерживаемый формат! Используйте MP3, OGG, WAV."
)

// uploadTooBigText formats the oversized-upload rejection.
func uploadTooBigText(sizeBytes int64) string {
	return fmt.Sprintf("Файл слишком большой: %.2f MB! Максимальный размер – 6MB.",
		float64(sizeBytes)/1024/1024)
}

// MainMenu renders the main options menu. The time-window button label
// always reflects the session's current window bounds.
func MainMenu(sess *Session) model.Menu {
	timeLabel := fmt.Sprintf("⏱️Редактировать время: с %dс по %dс",
		sess.WindowStartSec, sess.WindowEndSec)

	return model.Menu{
		Text: chooseOptionText,
		Buttons: [][]model.Button{
			{{Label: timeLabel, Data: CallbackSetTimeCode}},
			{{Label: "▶️Создать кружок", Data: CallbackCreateVideo}},
			{{Label: "🔄 Найти новую песню", Data: CallbackRestartSearch}},
		},
	}
}

// MainMenuWithText renders the main menu under a custom message.
func MainMenuWithText(sess *Session, text string) model.Menu {
	menu := MainMenu(sess)
	menu.Text = text
	return menu
}

// TimeMenu renders the time-selection sub-menu.
func TimeMenu(sess *Session) model.Menu {
	text := fmt.Sprintf("Теперь давай обрежем твой аудиофайл как надо!\n"+
		"Его длительность %dс. "+
		"Максимальная длина кружочка - 1 минута. "+
		"Можем начать с начала или выбрать особый отрезок песни.",
		sess.TrackDurationSec)

	return model.Menu{
		Text: text,
		Buttons: [][]model.Button{
			{
				{Label: "⭐️С начала", Data: CallbackFromStart},
				{Label: "Ввести время самому", Data: CallbackCustomTime},
			},
			{{Label: "Назад", Data: CallbackBackToMenu}},
		},
	}
}

// CandidateMenu renders the numbered search-result list with one button per
// candidate; the button payload is the track id.
func CandidateMenu(candidates []model.TrackCandidate) model.Menu {
	var text strings.Builder
	text.WriteString("Выбери одну песню из найденных:")

	buttons := make([]model.Button, len(candidates))
	for i, track := range candidates {
		fmt.Fprintf(&text, "\n %d) %s – %s (%d:%02d)",
			i+1, track.Title, track.Artists,
			track.Duration/60, track.Duration%60)
		buttons[i] = model.Button{Label: fmt.Sprintf("%d", i+1), Data: track.ID}
	}

	rows := [][]model.Button{buttons[:1]}
	if len(buttons) > 1 {
		rows = append(rows, buttons[1:])
	}

	return model.Menu{Text: text.String(), Buttons: rows}
}

// CustomTimePrompt is the free-text time entry prompt.
func CustomTimePrompt() string {
	return customTimeText
}

// WindowAppliedText confirms a freshly applied custom window.
func WindowAppliedText(sess *Session) string {
	return fmt.Sprintf("✅Возьмем аудио с %dс по %dс.\nВыберите опцию:",
		sess.WindowStartSec, sess.WindowEndSec)
}

// BadWindowText explains why a custom window was rejected.
func BadWindowText(durationSec int) string {
	return fmt.Sprintf("Интервал задан неверно: начало должно быть меньше конца, "+
		"а конец не больше длительности трека (%dс). Попробуй еще раз.", durationSec)
}
