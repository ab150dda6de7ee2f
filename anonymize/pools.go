// Copyright 2025 Loft Manager Authors
// SPDX-License-Identifier: Apache-2.0

package anonymize

// Fixed substitution pools. These are intentionally package-level constants:
// deterministic anonymizers index into them by content hash, so changing the
// pool contents or ordering changes every derived output.

// TestDomain is the replacement email domain used when the original domain is
// not preserved.
const TestDomain = "test.local"

var firstNamePool = []string{
	"Ahmed", "Amine", "Karim", "Mohamed", "Rachid", "Sofiane", "Yacine", "Younes",
	"Bilal", "Farid", "Hakim", "Mehdi", "Nabil", "Omar", "Samir", "Walid",
	"Amina", "Fatima", "Khadija", "Lina", "Meriem", "Nadia", "Samira", "Yasmine",
	"Djamila", "Houria", "Imene", "Kenza", "Leila", "Salima", "Souad", "Zahra",
}

var lastNamePool = []string{
	"Benali", "Benaissa", "Bouaziz", "Boudjemaa", "Bounab", "Brahimi", "Cherif",
	"Djebbar", "Ferhat", "Guerfi", "Haddad", "Hamidi", "Kaci", "Khelifi",
	"Lounis", "Mansouri", "Meziane", "Mokrani", "Rahmani", "Saadi", "Sahnoun",
	"Slimani", "Taleb", "Touati", "Yahiaoui", "Zerrouki", "Ziani", "Zitouni",
}

// Mobile prefixes cover the Djezzy/Mobilis/Ooredoo ranges; landline prefixes
// are regional area codes. Both are expressed on the 9-digit local form
// (leading trunk zero stripped).
var mobilePrefixPool = []string{
	"55", "56", "54", "66", "67", "69", "77", "79", "78",
}

var landlinePrefixPool = []string{
	"21", "23", "24", "25", "26", "27", "29",
	"31", "33", "34", "36", "38",
	"41", "43", "45", "46", "48", "49",
}

var cityPool = []string{
	"Alger", "Oran", "Constantine", "Annaba", "Blida", "Batna", "Setif",
	"Tlemcen", "Bejaia", "Tizi Ouzou", "Mostaganem", "Biskra",
}

var streetTypePool = []string{
	"Rue", "Avenue", "Boulevard", "Cite", "Lotissement",
}

var streetNamePool = []string{
	"Didouche Mourad", "Larbi Ben M'hidi", "Emir Abdelkader", "des Martyrs",
	"de la Liberte", "du 1er Novembre", "Colonel Amirouche", "Hassiba Ben Bouali",
	"Mohamed Boudiaf", "Frantz Fanon", "des Freres Bouadou", "de l'Independance",
}
