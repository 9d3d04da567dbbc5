package router

import (
	kit "digestbot/internal/transport"
	"digestbot/pkg/tgui"
)

func mainMenu() any {
	return tgui.NewInline().
		Row(tgui.Btn("Digest now", tgui.Data("digest", "run", ""))).
		Row(
			tgui.Btn("Sources", tgui.Data("menu", "sources", "")),
			tgui.Btn("Interests", tgui.Data("menu", "interests", "")),
		).
		Row(
			tgui.Btn("Schedule", tgui.Data("menu", "schedule", "")),
			tgui.Btn("Help", tgui.Data("menu", "help", "")),
		).
		Markup()
}

func scheduleMenu() any {
	return tgui.NewInline().
		Row(
			tgui.Btn("08:00", tgui.Data("schedule", "set", "08:00")),
			tgui.Btn("12:00", tgui.Data("schedule", "set", "12:00")),
			tgui.Btn("19:00", tgui.Data("schedule", "set", "19:00")),
		).
		Row(tgui.Btn("Turn off", tgui.Data("schedule", "off", ""))).
		Markup()
}

func helpText() string {
	return tgui.JoinH("\n",
		tgui.B("Commands"),
		tgui.Esc("/digest - build and send a digest now"),
		tgui.Esc("/sources - list your sources"),
		tgui.Esc("/addsource <feed|page|channel> <location> - add a source"),
		tgui.Esc("/delsource <id> - remove a source"),
		tgui.Esc("/interests - list your interests"),
		tgui.Esc("/addinterest <topic> - add an interest"),
		tgui.Esc("/delinterest <id> - remove an interest"),
		tgui.Esc("/schedule [HH:MM|off] - manage the daily delivery time"),
		tgui.Esc("/menu - show the button menu"),
	).String()
}

func menuCommands() []kit.BotCommand {
	return []kit.BotCommand{
		{Command: "digest", Description: "Build and send a digest now"},
		{Command: "sources", Description: "List your sources"},
		{Command: "addsource", Description: "Add a source"},
		{Command: "delsource", Description: "Remove a source"},
		{Command: "interests", Description: "List your interests"},
		{Command: "addinterest", Description: "Add an interest"},
		{Command: "delinterest", Description: "Remove an interest"},
		{Command: "schedule", Description: "Manage the daily delivery time"},
		{Command: "menu", Description: "Show the button menu"},
		{Command: "help", Description: "Show help"},
	}
}
