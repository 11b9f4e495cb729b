// Package worker запускает дочерние workflow, запрошенные родителями.
//
// # Обзор
//
// Родитель публикует domain.ChildWorkflowMetadata в очередь child.invoke
// (см. child.Publisher). Worker потребляет очередь и для каждого сообщения:
//
//  1. Находит описание по (definitionId, version) через engine.Source
//  2. Создаёт экземпляр с initOptions.state, initOptions.context и runtimeId
//  3. Подключает плагин сохранения, если задан store.Store
//  4. Отправляет initOptions.event, если оно задано
//  5. Если экземпляр дошёл до финального состояния и задан callbackInfo,
//     публикует событие для родителя в child.callback
//  6. Иначе передаёт экземпляр в Tracker (orchestrator.Orchestrator), чтобы
//     до него доходили callback вложенных детей и события scheduler;
//     callback родителю публикуется, когда экземпляр завершится
//
// Несколько workers читают одну очередь.
//
// # Использование
//
//	w, err := worker.New(worker.Config{
//	    Conn:      conn,
//	    Source:    engine.NewCachedSource(repo.NewDefinitionRepo(pool), 10*time.Minute),
//	    Store:     repo.NewRecordRepo(pool),
//	    Callbacks: mq.NewPublisher(conn, logger),
//	    Logger:    logger,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := w.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Stop()
//
// # Ошибки
//
// Ошибка обработки возвращается consumer'у: сообщение отклоняется без
// повторной постановки и уходит в dlq.children. Повторов нет.
package worker
