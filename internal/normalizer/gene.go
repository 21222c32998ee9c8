package normalizer

import (
	"github.com/hivdr-report/internal/domain"
)

// geneProcessor builds the drug-class row groups of one gene
type geneProcessor interface {
	drugClasses() ([]domain.DrugClass, error)
}

// rtGene mixes NRTI, NNRTI and Other mutation types, each of which gets its own row
type rtGene struct {
	gene domain.GeneResult
}

// otherGene aggregates all drug classes of the gene into one row
type otherGene struct {
	gene domain.GeneResult
}

func classify(gene domain.GeneResult) geneProcessor {
	if gene.Name == domain.GeneRT {
		return rtGene{gene: gene}
	}
	return otherGene{gene: gene}
}

func (g otherGene) drugClasses() ([]domain.DrugClass, error) {
	gene := g.gene

	name := gene.Name
	var drugs domain.Entries
	for _, score := range gene.DrugScores {
		drugs.Set(score.Label(), score.Text)
		name = score.DrugClass
	}

	groups, err := ensureOtherGroup(gene, name)
	if err != nil {
		return nil, err
	}

	var mutations domain.Entries
	var other []string
	anchors := make(map[string]bool)
	for _, group := range groups {
		mutations.Set(gene.Name+group.Type, joinMutations(group.Mutations))
		for _, m := range group.Mutations {
			anchors[m] = true
		}
		if group.Type == domain.MutationTypeOther {
			other = group.Mutations
		}
	}

	comments := anchored(commentsByMutation(allComments(gene)), anchors)
	mutations.Set(gene.Name+domain.MutationTypeOther, joinMutations(intersect(other, comments)))

	return []domain.DrugClass{{
		Gene:      gene.Name,
		Name:      name,
		Mutations: mutations,
		Drugs:     drugs,
		Comments:  joinComments(comments),
	}}, nil
}

func (g rtGene) drugClasses() ([]domain.DrugClass, error) {
	gene := g.gene
	classes := make([]domain.DrugClass, 0, len(gene.MutationGroups))

	for _, group := range gene.MutationGroups {
		var mutations, drugs domain.Entries

		for _, score := range gene.DrugScores {
			if score.DrugClass == group.Type {
				drugs.Set(score.Label(), score.Text)
			}
		}

		var typed []domain.Comment
		for _, c := range allComments(gene) {
			if c.Type == group.Type {
				typed = append(typed, c)
			}
		}
		comments := commentsByMutation(typed)

		tokens := group.Mutations
		name := group.Type
		if group.Type == domain.MutationTypeOther {
			comments = anchored(comments, tokenSet(group.Mutations))
			tokens = intersect(tokens, comments)
			name = domain.OtherRTClassName
		}
		mutations.Set(group.Type, joinMutations(tokens))

		classes = append(classes, domain.DrugClass{
			Gene:      gene.Name,
			Name:      name,
			Mutations: mutations,
			Drugs:     drugs,
			Comments:  joinComments(comments),
		})
	}
	return classes, nil
}

// ensureOtherGroup guarantees the gene has an "Other" mutation group before
// reconciliation. A missing group is synthesized empty unless the gene carries
// anchored comments, which cannot be reconciled without it.
func ensureOtherGroup(gene domain.GeneResult, drugClass string) ([]domain.MutationGroup, error) {
	for _, group := range gene.MutationGroups {
		if group.Type == domain.MutationTypeOther {
			return gene.MutationGroups, nil
		}
	}

	if len(commentsByMutation(allComments(gene))) > 0 {
		return nil, &domain.MissingMutationGroupError{
			Gene:      gene.Name,
			DrugClass: drugClass,
			Group:     domain.MutationTypeOther,
		}
	}

	groups := make([]domain.MutationGroup, 0, len(gene.MutationGroups)+1)
	groups = append(groups, gene.MutationGroups...)
	return append(groups, domain.MutationGroup{Type: domain.MutationTypeOther}), nil
}

// allComments flattens the gene's comment groups. A comment without its own type
// inherits the group's.
func allComments(gene domain.GeneResult) []domain.Comment {
	var out []domain.Comment
	for _, group := range gene.CommentGroups {
		for _, c := range group.Comments {
			if c.Type == "" {
				c.Type = group.Type
			}
			out = append(out, c)
		}
	}
	return out
}
