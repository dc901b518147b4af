package hcl

import "github.com/hashicorp/hcl/v2"

// fileRoot decodes all possible top-level blocks from any definition file.
type fileRoot struct {
	Pipeline    *pipelineBlock `hcl:"pipeline,block"`
	Schedule    *scheduleBlock `hcl:"schedule,block"`
	Sources     []*entityBlock `hcl:"source,block"`
	Aggregators []*entityBlock `hcl:"aggregator,block"`
	Sinks       []*entityBlock `hcl:"sink,block"`
}

// pipelineBlock holds pipeline-wide metadata.
type pipelineBlock struct {
	Name string `hcl:"name,optional"`
}

// scheduleBlock holds the recurring-run settings.
type scheduleBlock struct {
	Frequency string  `hcl:"frequency"`
	Samples   *int    `hcl:"samples,optional"`
	Start     *string `hcl:"start,optional"`
}

// entityBlock is a `source`, `aggregator` or `sink` block. Every attribute
// in its body is forwarded to the entity as an option.
type entityBlock struct {
	Type   string   `hcl:"type,label"`
	ID     string   `hcl:"id,label"`
	Remain hcl.Body `hcl:",remain"`
}
