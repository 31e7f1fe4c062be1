package persona

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Persona is one scammer character from the read-only catalog. Records are
// created out-of-band (seeded by content authors) and never mutated by the
// service.
type Persona struct {
	ID           uuid.UUID
	Name         string
	Age          int
	Role         string
	Biography    string
	SystemPrompt string
	Difficulty   int // 1–10, sole driver of reward magnitude
	AvatarURL    string
}

// Reward magnitudes per difficulty point.
const (
	CoinsPerDifficulty = 50
	XPPerDifficulty    = 100
)

// OpeningLine builds the deterministic greeting that seeds every
// transcript: name, role, and the first sentence of the biography.
func OpeningLine(p *Persona) string {
	return fmt.Sprintf("Здравствуйте! Я %s, %s. %s.", p.Name, p.Role, firstSentence(p.Biography))
}

// InterviewPrompt builds the post-exposure system prompt: the persona has
// been caught and now answers out of character, honestly.
func InterviewPrompt(p *Persona) string {
	return fmt.Sprintf(`Ты - %s, %s. Тебя только что разоблачили как мошенника.

Биография: %s

Теперь пользователь задаёт тебе личные вопросы. Отвечай честно, как настоящий человек, объясняя:
- Почему ты стал мошенником
- Твою реальную жизнь и мотивацию
- Какие схемы используешь
- Что чувствуешь когда обманываешь людей
- Свои страхи и сожаления

Говори от первого лица, будь человечным, показывай эмоции. Ты уже пойман, нет смысла врать дальше.`, p.Name, p.Role, p.Biography)
}

// InterviewGreeting opens the post-exposure Q&A.
func InterviewGreeting(p *Persona) string {
	return fmt.Sprintf("Ну что, вы меня поймали. Задавайте вопросы, раз уж так вышло. Я %s, и да, я мошенник.", p.Name)
}

func firstSentence(text string) string {
	s := text
	if i := strings.Index(s, "."); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
