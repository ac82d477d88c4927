package profiles

import (
	"encoding/json"
	"sort"

	"github.com/pwd-registry/pwd-registry/internal/db/models"
)

// Relation names, matching the snapshot document keys.
const (
	RelPersonalInfo  = "personal_info"
	RelAddress       = "address"
	RelContact       = "contact"
	RelDisabilities  = "disabilities"
	RelEmployment    = "employment"
	RelEducation     = "education"
	RelFamilyMembers = "family_members"
	RelGovernmentIDs = "government_ids"
	RelHousehold     = "household_info"
	RelOrganization  = "organization"
)

// ChangedRelations returns the sub-records whose content differs between before
// and after. Row IDs and ordering of collections are ignored.
func ChangedRelations(before, after *models.ProfileRecord) []string {
	b, a := fingerprints(before), fingerprints(after)
	names := make([]string, 0, len(b))
	for name := range b {
		if b[name] != a[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func fingerprints(rec *models.ProfileRecord) map[string]string {
	fp := func(v any) string {
		data, _ := json.Marshal(v)
		return string(data)
	}
	many := func(items []string) string {
		sort.Strings(items)
		return fp(items)
	}

	out := map[string]string{}

	if pi := rec.PersonalInfo; pi != nil {
		c := *pi
		c.ID = ""
		out[RelPersonalInfo] = fp(c)
	} else {
		out[RelPersonalInfo] = ""
	}
	if a := rec.Address; a != nil {
		c := *a
		c.ID = ""
		out[RelAddress] = fp(c)
	} else {
		out[RelAddress] = ""
	}
	if ct := rec.Contact; ct != nil {
		c := *ct
		c.ID = ""
		out[RelContact] = fp(c)
	} else {
		out[RelContact] = ""
	}
	if e := rec.Employment; e != nil {
		c := *e
		c.ID = ""
		out[RelEmployment] = fp(c)
	} else {
		out[RelEmployment] = ""
	}
	if e := rec.Education; e != nil {
		c := *e
		c.ID = ""
		out[RelEducation] = fp(c)
	} else {
		out[RelEducation] = ""
	}
	if h := rec.HouseholdInfo; h != nil {
		c := *h
		c.ID = ""
		out[RelHousehold] = fp(c)
	} else {
		out[RelHousehold] = ""
	}
	if o := rec.Organization; o != nil {
		c := *o
		c.ID = ""
		out[RelOrganization] = fp(c)
	} else {
		out[RelOrganization] = ""
	}

	dis := make([]string, 0, len(rec.Disabilities))
	for _, d := range rec.Disabilities {
		d.ID = ""
		dis = append(dis, fp(d))
	}
	out[RelDisabilities] = many(dis)

	fam := make([]string, 0, len(rec.FamilyMembers))
	for _, f := range rec.FamilyMembers {
		f.ID = ""
		fam = append(fam, fp(f))
	}
	out[RelFamilyMembers] = many(fam)

	ids := make([]string, 0, len(rec.GovernmentIDs))
	for _, g := range rec.GovernmentIDs {
		g.ID = ""
		ids = append(ids, fp(g))
	}
	out[RelGovernmentIDs] = many(ids)

	return out
}
