package types

// Topic is a closed set of event kinds published on the bus. Values are
// bit-exact with the wire contract external subscribers depend on; do not
// rename.
type Topic string

const (
	TopicTaskPosted          Topic = "TASK_POSTED"
	TopicTaskAnalyzed        Topic = "TASK_ANALYZED"
	TopicTaskDecomposed      Topic = "TASK_DECOMPOSED"
	TopicTaskClaimed         Topic = "TASK_CLAIMED"
	TopicTaskProgress        Topic = "TASK_PROGRESS"
	TopicTaskRetryScheduled  Topic = "TASK_RETRY_SCHEDULED"
	TopicArtifactReady       Topic = "ARTIFACT_READY"
	TopicEvidenceReady       Topic = "EVIDENCE_READY"
	TopicIntelReady          Topic = "INTEL_READY"
	TopicTaskClosed          Topic = "TASK_CLOSED"
	TopicTaskFailed          Topic = "TASK_FAILED"
	TopicSOSError            Topic = "SOS_ERROR"
	TopicApprovalRequired    Topic = "APPROVAL_REQUIRED"
	TopicApprovalDecision    Topic = "APPROVAL_DECISION"
	TopicAgentSummonRequest  Topic = "AGENT_SUMMON_REQUEST"
	TopicAgentSummonResolved Topic = "AGENT_SUMMON_RESOLVED"
	TopicAgentStatusReport   Topic = "AGENT_STATUS_REPORT"
	TopicAssetUpdated        Topic = "ASSET_UPDATED"
	TopicSkillQuarantined    Topic = "SKILL_QUARANTINED"
	TopicCompactionTick      Topic = "COMPACTION_TICK"
	TopicHUDSync             Topic = "HUD_SYNC"
)

// AllTopics is the closed set above, in declaration order. The AuditLog
// subscribes to all of it.
var AllTopics = []Topic{
	TopicTaskPosted,
	TopicTaskAnalyzed,
	TopicTaskDecomposed,
	TopicTaskClaimed,
	TopicTaskProgress,
	TopicTaskRetryScheduled,
	TopicArtifactReady,
	TopicEvidenceReady,
	TopicIntelReady,
	TopicTaskClosed,
	TopicTaskFailed,
	TopicSOSError,
	TopicApprovalRequired,
	TopicApprovalDecision,
	TopicAgentSummonRequest,
	TopicAgentSummonResolved,
	TopicAgentStatusReport,
	TopicAssetUpdated,
	TopicSkillQuarantined,
	TopicCompactionTick,
	TopicHUDSync,
}
