package pipeline

// filterAvailable drops the raw proposals the arbiter would refuse to the slot given the
// bindings held by other queries. A slot's own binding is always kept.
func (p *Pipeline) filterAvailable() {
	arb := p.reg.Arbiter()
	for _, slot := range p.fulfilled {
		id, exclusivity := p.reg.IDs[slot], p.reg.Exclusivities[slot]

		proposals := p.reg.Proposals[slot][:0]
		for _, dataID := range p.reg.RawProposals[slot] {
			if arb.Available(dataID, id, exclusivity) {
				proposals = append(proposals, dataID)
			}
		}
		p.reg.Proposals[slot] = proposals
	}
}
