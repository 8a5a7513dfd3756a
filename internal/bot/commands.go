package bot

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Table holds the static reply surface: prefixed commands matched on the
// first word, and bare keywords matched against the whole message.
type Table struct {
	Commands map[string]string `yaml:"commands"`
	Keywords map[string]string `yaml:"keywords"`
}

// DefaultTable returns the built-in command set.
func DefaultTable() Table {
	return Table{
		Commands: map[string]string{
			"!ping": "Pong! 🏓\nStatus: Online\nWaktu: {time}",
			"!halo": "Halo juga! 👋\nAda yang bisa saya bantu?",
			"!menu": "*📋 DAFTAR PERINTAH BOT*\n\n" +
				"1. !ping - Cek status bot\n" +
				"2. !halo - Sapa bot\n" +
				"3. !menu - Tampilkan daftar perintah\n" +
				"4. !info - Info tentang bot\n" +
				"5. !waktu - Cek waktu sekarang\n" +
				"6. !help - Bantuan penggunaan bot\n" +
				"7. !ai [pertanyaan] - Tanya ke AI\n" +
				"8. !reset - Reset history chat dengan AI\n" +
				"9. !model [nama_model] - Ganti model AI (gpt35/gpt4/claude/mistral)",
			"!info": "*ℹ️ INFO BOT*\n\n" +
				"• Nama: WhatsApp Bot + AI\n" +
				"• Model AI: {model}\n" +
				"• Status: Active\n" +
				"• Prefix: !\n" +
				"• Waktu Aktif: {uptime}",
			"!waktu": "Waktu sekarang: {time}",
			"!help": "*❓ BANTUAN PENGGUNAAN BOT*\n\n" +
				"• Semua perintah menggunakan awalan \"!\"\n" +
				"• Untuk bertanya ke AI, gunakan !ai [pertanyaan]\n" +
				"• Untuk ganti model AI, gunakan !model [nama_model]\n" +
				"• Model yang tersedia: gpt35, gpt4, claude, mistral\n" +
				"• Bot akan mengingat konteks percakapan\n" +
				"• Gunakan !reset untuk memulai percakapan baru",
		},
		Keywords: map[string]string{
			"p":       "Iya, ada yang bisa saya bantu? 😊\nKetik !menu untuk melihat daftar perintah.",
			"test":    "Bot aktif! 🤖\nKetik !menu untuk melihat daftar perintah.",
			"tes":     "Bot aktif! 🤖\nKetik !menu untuk melihat daftar perintah.",
			"bot":     "Iya, saya bot WhatsApp 🤖\nKetik !menu untuk melihat daftar perintah.",
			"thanks":  "Sama-sama! 😊",
			"makasih": "Sama-sama! 😊",
			"thx":     "Sama-sama! 😊",
			"halo":    "Halo juga! 👋\nAda yang bisa saya bantu?",
			"hai":     "Hai juga! 👋\nAda yang bisa saya bantu?",
		},
	}
}

// LoadTableFile reads a YAML command file and overlays it on the defaults.
// Custom entries win over built-ins on key collision.
func LoadTableFile(path string) (Table, error) {
	table := DefaultTable()
	if strings.TrimSpace(path) == "" {
		return table, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("read commands file: %w", err)
	}
	var custom Table
	if err := yaml.Unmarshal(raw, &custom); err != nil {
		return Table{}, fmt.Errorf("parse commands file %s: %w", path, err)
	}

	for key, tmpl := range custom.Commands {
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			continue
		}
		table.Commands[key] = tmpl
	}
	for key, reply := range custom.Keywords {
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			continue
		}
		table.Keywords[key] = reply
	}
	return table, nil
}

// expandTemplate resolves the {time}, {uptime} and {model} placeholders.
func expandTemplate(tmpl string, now time.Time, uptime time.Duration, model string) string {
	r := strings.NewReplacer(
		"{time}", now.Format("2/1/2006 15.04.05"),
		"{uptime}", formatUptime(uptime),
		"{model}", model,
	)
	return r.Replace(tmpl)
}

func formatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%d jam %d menit", hours, minutes)
}
