// Package scheduler отправляет события активным экземплярам по расписанию.
//
// Schedule задаёт событие, описание-получатель и расписание (cron или
// интервал). Например, ежедневное напоминание REMIND всем заявкам в
// состоянии waiting_documents.
//
// Структура:
//   - scheduler.go — Scheduler (Tick, Run)
//   - cron.go      — парсинг cron-выражений и вычисление следующего времени
//
// Использование:
//
//	sched, err := scheduler.New(scheduler.Config{
//	    Target: orch, // *orchestrator.Orchestrator
//	    Schedules: []scheduler.Schedule{{
//	        Name:         "remind",
//	        DefinitionID: "onboarding",
//	        State:        "waiting_documents",
//	        Event:        domain.Event{Type: "REMIND"},
//	        CronExpr:     "0 9 * * *",
//	        Timezone:     "Europe/Moscow",
//	    }},
//	    Logger: logger,
//	})
//	go sched.Run(ctx, time.Second)
//
// Экземпляр в финальном состоянии завершается через Target.Finish.
package scheduler
