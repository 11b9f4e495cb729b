package domain

// ChildWorkflowConfig — настройка дочернего workflow в родительском.
//
// Дочерний workflow запускается при каждом зафиксированном переходе
// родителя в одно из состояний StateNames.
type ChildWorkflowConfig struct {
	// Name — имя дочернего workflow.
	Name string `json:"name"`

	// DefinitionID — идентификатор описания дочернего workflow.
	DefinitionID string `json:"definitionId"`

	// RuntimeID — идентификатор экземпляра дочернего workflow.
	RuntimeID string `json:"runtimeId,omitempty"`

	// DefinitionVersion — версия описания дочернего workflow.
	DefinitionVersion int `json:"definitionVersion"`

	// StateNames — состояния родителя, переход в которые запускает дочерний workflow.
	StateNames []string `json:"stateNames"`

	// ContextToCopy — путь в контексте родителя (например, "endUser.id"),
	// значение которого копируется в контекст дочернего workflow.
	ContextToCopy string `json:"contextToCopy,omitempty"`

	// CallbackInfo — как дочерний workflow сообщает о себе родителю.
	CallbackInfo *CallbackInfo `json:"callbackInfo,omitempty"`

	// InitOptions — параметры запуска дочернего workflow.
	InitOptions InitOptions `json:"initOptions"`
}

// CallbackInfo — событие для родителя и путь в контексте дочернего workflow.
type CallbackInfo struct {
	Event         string `json:"event"`
	ContextToCopy string `json:"contextToCopy,omitempty"`
}

// InitOptions — параметры запуска дочернего workflow.
type InitOptions struct {
	// Event — событие, отправляемое дочернему workflow сразу после создания.
	Event string `json:"event,omitempty"`

	// Context — начальный контекст дочернего workflow.
	Context map[string]any `json:"context,omitempty"`

	// State — начальное состояние дочернего workflow.
	State string `json:"state,omitempty"`
}

// ChildWorkflowMetadata — данные для запуска дочернего workflow.
//
// Строится заново при каждом вызове и движком не хранится.
type ChildWorkflowMetadata struct {
	Name         string      `json:"name"`
	DefinitionID string      `json:"definitionId"`
	RuntimeID    string      `json:"runtimeId,omitempty"`
	Version      int         `json:"version"`
	InitOptions  InitOptions `json:"initOptions"`

	// ParentDefinitionID и ParentRuntimeID — откуда пришёл запуск.
	ParentDefinitionID string `json:"parentDefinitionId,omitempty"`
	ParentRuntimeID    string `json:"parentRuntimeId,omitempty"`

	// CallbackInfo копируется из ChildWorkflowConfig без изменений.
	CallbackInfo *CallbackInfo `json:"callbackInfo,omitempty"`
}
