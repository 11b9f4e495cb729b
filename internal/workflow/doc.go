// Package workflow — экземпляры workflow и фабрика для их создания.
//
// Client собирает Instance из описания, плагинов, настроек дочерних
// workflow и, при восстановлении, сохранённой пары {state, context}.
//
// Использование:
//
//	client := workflow.NewClient(workflow.ClientOptions{
//		OnInvokeChildWorkflow: child.NewPublisher(publisher),
//	})
//	inst, err := client.CreateWorkflow(workflow.Options{
//		Definition: body,
//		Extensions: workflow.Extensions{
//			StatePlugins: []plugin.Plugin{plugin.NewPersistence(plugin.PersistenceConfig{Store: s})},
//		},
//	})
//	outcome, err := inst.SendEvent(ctx, domain.Event{Type: "TOGGLE"})
//	snap := inst.Snapshot()
package workflow
